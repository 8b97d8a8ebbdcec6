package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/cache"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/registry"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/services"

	"github.com/gin-gonic/gin"
)

const adminRequestListLimit = 100

// AdminHandler serves the separately authenticated admin API: request
// listing, stats, price and wallet settings, bulletins, promo codes and
// registry cache invalidation.
type AdminHandler struct {
	flash       *services.FlashService
	settings    *services.SettingsService
	promos      *services.PromoService
	bulletins   *services.BulletinService
	deviceCache cache.Cache[[]registry.Device]
}

func NewAdminHandler(
	flash *services.FlashService,
	settings *services.SettingsService,
	promos *services.PromoService,
	bulletins *services.BulletinService,
	deviceCache cache.Cache[[]registry.Device],
) *AdminHandler {
	return &AdminHandler{
		flash:       flash,
		settings:    settings,
		promos:      promos,
		bulletins:   bulletins,
		deviceCache: deviceCache,
	}
}

// ListRequests handles GET /admin/requests
func (h *AdminHandler) ListRequests(c *gin.Context) {
	requests, err := h.flash.ListRequests(adminRequestListLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.flash.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetPrice handles GET /admin/price
func (h *AdminHandler) GetPrice(c *gin.Context) {
	price, err := h.settings.GetPrice()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"price_sats": price})
}

// SetPrice handles POST /admin/price
func (h *AdminHandler) SetPrice(c *gin.Context) {
	price, err := strconv.ParseInt(c.Query("price_sats"), 10, 64)
	if err != nil || price < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "price_sats must be a positive integer",
		})
		return
	}
	if err := h.settings.SetPrice(price); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "price_sats": price})
}

// GetWallet handles GET /admin/wallet
func (h *AdminHandler) GetWallet(c *gin.Context) {
	walletID, err := h.settings.GetWalletID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet_id": walletID})
}

// SetWallet handles POST /admin/wallet
func (h *AdminHandler) SetWallet(c *gin.Context) {
	walletID := c.Query("wallet_id")
	if walletID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "wallet_id is required",
		})
		return
	}
	if err := h.settings.SetWalletID(walletID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "wallet_id": walletID})
}

// ListBulletins handles GET /admin/bulletins
func (h *AdminHandler) ListBulletins(c *gin.Context) {
	bulletins, err := h.bulletins.ListAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bulletins": bulletins})
}

type createBulletinRequest struct {
	Message string `json:"message" binding:"required"`
}

// CreateBulletin handles POST /admin/bulletins
func (h *AdminHandler) CreateBulletin(c *gin.Context) {
	var req createBulletinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "message is required",
		})
		return
	}
	bulletin, err := h.bulletins.Create(req.Message)
	if err != nil {
		if errors.Is(err, services.ErrBulletinInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, bulletin)
}

type updateBulletinRequest struct {
	Message *string `json:"message"`
	Active  *bool   `json:"active"`
}

// UpdateBulletin handles PUT /admin/bulletins/:id
func (h *AdminHandler) UpdateBulletin(c *gin.Context) {
	var req updateBulletinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	bulletin, err := h.bulletins.Update(c.Param("id"), req.Message, req.Active)
	if err != nil {
		if errors.Is(err, services.ErrBulletinInvalid) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, bulletin)
}

// DeleteBulletin handles DELETE /admin/bulletins/:id
func (h *AdminHandler) DeleteBulletin(c *gin.Context) {
	if err := h.bulletins.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListPromoCodes handles GET /admin/promo
func (h *AdminHandler) ListPromoCodes(c *gin.Context) {
	codes, err := h.promos.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"promo_codes": codes})
}

type createPromoRequest struct {
	Code            string `json:"code"             binding:"required"`
	DiscountPercent int    `json:"discount_percent" binding:"required"`
	MaxUses         int    `json:"max_uses"         binding:"required"`
}

// CreatePromoCode handles POST /admin/promo
func (h *AdminHandler) CreatePromoCode(c *gin.Context) {
	var req createPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "code, discount_percent and max_uses are required",
		})
		return
	}
	promo, err := h.promos.Create(req.Code, req.DiscountPercent, req.MaxUses)
	if err != nil {
		if errors.Is(err, services.ErrPromoInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "discount_percent must be 1-100 and max_uses positive",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, promo)
}

// DeletePromoCode handles DELETE /admin/promo/:id
func (h *AdminHandler) DeletePromoCode(c *gin.Context) {
	if err := h.promos.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RefreshRegistry handles POST /admin/registry/refresh. Dropping a new
// firmware file is picked up on the next scan anyway; this forces the
// cached public listing to notice immediately.
func (h *AdminHandler) RefreshRegistry(c *gin.Context) {
	if err := h.deviceCache.Delete(c.Request.Context(), deviceCacheKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
