package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/cache"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/registry"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/services"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/token"

	"github.com/gin-gonic/gin"
)

const deviceCacheKey = "devices"

// FlashHandler serves the public API: device discovery, pricing, invoice
// creation, status polling, the gated firmware download and completion.
type FlashHandler struct {
	flash       *services.FlashService
	settings    *services.SettingsService
	promos      *services.PromoService
	bulletins   *services.BulletinService
	registry    *registry.Registry
	store       *store.Store
	deviceCache cache.Cache[[]registry.Device]
	cacheTTL    time.Duration
}

func NewFlashHandler(
	flash *services.FlashService,
	settings *services.SettingsService,
	promos *services.PromoService,
	bulletins *services.BulletinService,
	reg *registry.Registry,
	s *store.Store,
	deviceCache cache.Cache[[]registry.Device],
	cacheTTL time.Duration,
) *FlashHandler {
	return &FlashHandler{
		flash:       flash,
		settings:    settings,
		promos:      promos,
		bulletins:   bulletins,
		registry:    reg,
		store:       s,
		deviceCache: deviceCache,
		cacheTTL:    cacheTTL,
	}
}

// Health handles GET /health
func (h *FlashHandler) Health(c *gin.Context) {
	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "tnaflasher",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "tnaflasher",
	})
}

// Devices handles GET /devices. The listing is served from cache; a fresh
// scan happens at most once per TTL or after an admin refresh.
func (h *FlashHandler) Devices(c *gin.Context) {
	devices, err := cache.GetWithFetch(
		c.Request.Context(), h.deviceCache, deviceCacheKey, h.cacheTTL,
		func(ctx context.Context) ([]registry.Device, error) {
			return h.registry.List()
		},
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// Price handles GET /price
func (h *FlashHandler) Price(c *gin.Context) {
	price, err := h.settings.GetPrice()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"price_sats": price})
}

// Bulletins handles GET /bulletins
func (h *FlashHandler) Bulletins(c *gin.Context) {
	bulletins, err := h.bulletins.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bulletins": bulletins})
}

// ValidatePromo handles GET /promo/validate
func (h *FlashHandler) ValidatePromo(c *gin.Context) {
	validation, err := h.promos.Validate(c.Query("code"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, validation)
}

type createInvoiceRequest struct {
	DeviceType      string `json:"device_type"      binding:"required"`
	FirmwareVersion string `json:"firmware_version" binding:"required"`
	PromoCode       string `json:"promo_code"`
}

// CreateInvoice handles POST /flash/invoice
func (h *FlashHandler) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "device_type and firmware_version are required",
		})
		return
	}

	walletID := c.Query("wallet_id")
	if walletID == "" {
		configured, err := h.settings.GetWalletID()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
			return
		}
		walletID = configured
	}

	result, err := h.flash.CreateRequest(
		c.Request.Context(), req.DeviceType, req.FirmwareVersion, walletID, req.PromoCode,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownArtifact):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_artifact",
				"message": fmt.Sprintf("no firmware %s for device %s", req.FirmwareVersion, req.DeviceType),
			})
		case errors.Is(err, services.ErrPromoInvalid):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_promo",
				"message": "promo code cannot be applied",
			})
		case errors.Is(err, services.ErrUpstreamPayment):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "payment_unavailable",
				"message": "could not create Lightning invoice",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_hash": result.PaymentHash,
		"bolt11":       result.Bolt11,
		"amount":       result.AmountSats,
		"expires_at":   result.ExpiresAt.Unix(),
	})
}

// Status handles GET /flash/status/:payment_hash
func (h *FlashHandler) Status(c *gin.Context) {
	result, err := h.flash.GetStatus(c.Param("payment_hash"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Download handles GET /firmware/:device_type/:version. Token failures are
// reported with deliberately coarse codes; the owner can learn the precise
// state from the status endpoint.
func (h *FlashHandler) Download(c *gin.Context) {
	deviceType := c.Param("device_type")
	version := c.Param("version")
	candidate := c.Query("token")

	if candidate == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "token_required",
			"message": "a download token is required",
		})
		return
	}

	artifact, err := h.flash.Download(deviceType, version, candidate)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, token.ErrTokenExpired):
			c.JSON(http.StatusForbidden, gin.H{"error": "token_expired"})
		case errors.Is(err, token.ErrTokenAlreadyUsed):
			c.JSON(http.StatusForbidden, gin.H{"error": "token_already_used"})
		case errors.Is(err, token.ErrTokenInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token_invalid"})
		case errors.Is(err, services.ErrArtifactMissing):
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact_missing"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	filename := fmt.Sprintf("%s_%s.bin", artifact.DeviceType, artifact.Label)
	c.FileAttachment(artifact.Path, filename)
}

// Complete handles POST /flash/complete/:payment_hash
func (h *FlashHandler) Complete(c *gin.Context) {
	err := h.flash.Complete(c.Param("payment_hash"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		case errors.Is(err, services.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_transition",
				"message": "flash is not in a downloadable state",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
