package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/lnbits"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/metrics"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/registry"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/token"
)

// InvoiceCreator is the slice of the LNbits client the flash service needs.
type InvoiceCreator interface {
	CreateInvoice(
		ctx context.Context,
		amountSats int64,
		memo string,
		expiry time.Duration,
		extra map[string]any,
	) (*lnbits.Invoice, error)
}

// InvoiceResult is returned to the caller after creating a flash request.
type InvoiceResult struct {
	PaymentHash string    `json:"payment_hash"`
	Bolt11      string    `json:"bolt11"`
	AmountSats  int64     `json:"amount_sats"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// StatusResult is the read-only projection of a request's state. The token
// is included only while the request sits in token_issued with a live,
// unconsumed token.
type StatusResult struct {
	Status         string     `json:"status"`
	Token          string     `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// FlashService is the request lifecycle engine: it creates requests,
// projects status, authorizes downloads and records completion. Settlement
// handling lives in the listener package; the two only meet through the
// store's conditional updates.
type FlashService struct {
	store         *store.Store
	registry      *registry.Registry
	tokens        *token.Service
	payments      InvoiceCreator
	settings      *SettingsService
	promos        *PromoService
	metrics       metrics.Recorder
	invoiceExpiry time.Duration
	paymentWindow time.Duration
}

func NewFlashService(
	s *store.Store,
	reg *registry.Registry,
	tokens *token.Service,
	payments InvoiceCreator,
	settings *SettingsService,
	promos *PromoService,
	m metrics.Recorder,
	invoiceExpiry, paymentWindow time.Duration,
) *FlashService {
	return &FlashService{
		store:         s,
		registry:      reg,
		tokens:        tokens,
		payments:      payments,
		settings:      settings,
		promos:        promos,
		metrics:       m,
		invoiceExpiry: invoiceExpiry,
		paymentWindow: paymentWindow,
	}
}

// CreateRequest validates the artifact, prices the flash, asks LNbits for
// an invoice and persists the new request in pending. A promo code covering
// the full price skips the invoice and goes straight to token_issued.
func (s *FlashService) CreateRequest(
	ctx context.Context,
	deviceType, firmwareVersion, walletID, promoCode string,
) (*InvoiceResult, error) {
	if _, err := s.registry.Resolve(deviceType, firmwareVersion); err != nil {
		if errors.Is(err, registry.ErrArtifactNotFound) {
			s.metrics.RecordInvoiceCreated(metrics.ResultError)
			return nil, ErrUnknownArtifact
		}
		return nil, err
	}

	price, err := s.settings.GetPrice()
	if err != nil {
		return nil, err
	}

	// The use is redeemed only once an invoice actually exists; an upstream
	// failure must not burn it.
	discountPercent := 0
	if promoCode != "" {
		validation, err := s.promos.Validate(promoCode)
		if err != nil {
			return nil, err
		}
		if !validation.Valid {
			s.metrics.RecordInvoiceCreated(metrics.ResultError)
			return nil, ErrPromoInvalid
		}
		discountPercent = validation.DiscountPercent
		price -= price * int64(discountPercent) / 100
	}

	if price <= 0 {
		if _, err := s.promos.Redeem(promoCode); err != nil {
			s.metrics.RecordInvoiceCreated(metrics.ResultError)
			return nil, err
		}
		return s.createFreeRequest(deviceType, firmwareVersion, walletID)
	}

	memo := fmt.Sprintf("TNA Flash: %s %s", deviceType, firmwareVersion)
	if discountPercent > 0 {
		memo += fmt.Sprintf(" (%d%% off)", discountPercent)
	}
	extra := map[string]any{
		"tag":       "tnaflasher",
		"device":    deviceType,
		"version":   firmwareVersion,
		"wallet_id": walletID,
	}
	if discountPercent > 0 {
		extra["promo_code"] = promoCode
		extra["discount_percent"] = discountPercent
	}

	invoice, err := s.payments.CreateInvoice(ctx, price, memo, s.invoiceExpiry, extra)
	if err != nil {
		s.metrics.RecordInvoiceCreated(metrics.ResultError)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamPayment, err)
	}

	if discountPercent > 0 {
		// The invoice is already priced with the discount, so losing an
		// exhaustion race at this point does not void it.
		if _, err := s.promos.Redeem(promoCode); err != nil && !errors.Is(err, ErrPromoInvalid) {
			return nil, err
		}
	}

	request := &models.FlashRequest{
		PaymentHash:     invoice.PaymentHash,
		Bolt11:          invoice.Bolt11,
		DeviceType:      deviceType,
		FirmwareVersion: firmwareVersion,
		WalletID:        walletID,
		AmountSats:      price,
		Status:          models.StatusPending,
	}
	if err := s.store.CreateFlashRequest(request); err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceCreated(metrics.ResultSuccess)
	return &InvoiceResult{
		PaymentHash: invoice.PaymentHash,
		Bolt11:      invoice.Bolt11,
		AmountSats:  price,
		ExpiresAt:   time.Now().Add(s.invoiceExpiry),
	}, nil
}

// createFreeRequest handles a 100 percent discount: no invoice exists, so
// the request is created, marked paid and issued its token inline under a
// pseudo payment hash.
func (s *FlashService) createFreeRequest(
	deviceType, firmwareVersion, walletID string,
) (*InvoiceResult, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(fmt.Appendf(nonce[:], "%s%s%d", deviceType, firmwareVersion, time.Now().UnixNano()))
	freeHash := hex.EncodeToString(sum[:])

	now := time.Now()
	request := &models.FlashRequest{
		PaymentHash:     freeHash,
		Bolt11:          "FREE",
		DeviceType:      deviceType,
		FirmwareVersion: firmwareVersion,
		WalletID:        walletID,
		AmountSats:      0,
		Status:          models.StatusPending,
	}
	if err := s.store.CreateFlashRequest(request); err != nil {
		return nil, err
	}
	if err := s.store.MarkPaid(freeHash, now); err != nil {
		return nil, err
	}

	signed, expiresAt, err := s.tokens.Mint(freeHash, deviceType, firmwareVersion)
	if err != nil {
		s.metrics.RecordTokenMinted(false)
		return nil, err
	}
	if err := s.store.AttachToken(freeHash, signed, expiresAt); err != nil {
		return nil, err
	}
	s.metrics.RecordTokenMinted(true)
	s.metrics.RecordInvoiceCreated(metrics.ResultSuccess)

	return &InvoiceResult{
		PaymentHash: freeHash,
		Bolt11:      "FREE",
		AmountSats:  0,
		ExpiresAt:   expiresAt,
	}, nil
}

// GetStatus projects the stored state of a request.
func (s *FlashService) GetStatus(paymentHash string) (*StatusResult, error) {
	request, err := s.store.GetFlashRequest(paymentHash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	result := &StatusResult{Status: request.Status}
	if request.Status == models.StatusTokenIssued &&
		!request.TokenUsed &&
		!request.TokenLapsed(time.Now()) {
		result.Token = request.Token
		result.TokenExpiresAt = request.TokenExpiresAt
	}
	return result, nil
}

// Download authorizes one firmware retrieval. The owning request is located
// through the token's own payment_hash claim (signature-checked first), then
// fully validated against stored state. The token is marked used atomically
// with the token_issued -> downloaded transition before any bytes are
// streamed, so of two racing downloads exactly one wins.
func (s *FlashService) Download(
	deviceType, firmwareVersion, candidateToken string,
) (*registry.Artifact, error) {
	paymentHash, err := s.tokens.ExtractPaymentHash(candidateToken)
	if err != nil {
		s.metrics.RecordTokenValidation(metrics.ResultInvalid)
		s.metrics.RecordDownload(metrics.ResultInvalid)
		return nil, err
	}

	request, err := s.store.GetFlashRequest(paymentHash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordDownload(metrics.ResultInvalid)
			return nil, ErrNotFound
		}
		return nil, err
	}

	// The URL must name the artifact the token was bound to
	if deviceType != request.DeviceType || firmwareVersion != request.FirmwareVersion {
		s.metrics.RecordTokenValidation(metrics.ResultInvalid)
		s.metrics.RecordDownload(metrics.ResultInvalid)
		return nil, token.ErrTokenInvalid
	}

	if _, err := s.tokens.Validate(request, candidateToken); err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			s.metrics.RecordTokenValidation(metrics.ResultExpired)
			s.metrics.RecordDownload(metrics.ResultExpired)
		case errors.Is(err, token.ErrTokenAlreadyUsed):
			s.metrics.RecordTokenValidation(metrics.ResultUsed)
			s.metrics.RecordDownload(metrics.ResultUsed)
		default:
			s.metrics.RecordTokenValidation(metrics.ResultInvalid)
			s.metrics.RecordDownload(metrics.ResultInvalid)
		}
		return nil, err
	}
	s.metrics.RecordTokenValidation(metrics.ResultSuccess)

	artifact, err := s.registry.Resolve(request.DeviceType, request.FirmwareVersion)
	if err != nil {
		if errors.Is(err, registry.ErrArtifactNotFound) {
			s.metrics.RecordDownload(metrics.ResultMissing)
			return nil, ErrArtifactMissing
		}
		return nil, err
	}

	if err := s.store.ConsumeToken(paymentHash, time.Now()); err != nil {
		if errors.Is(err, store.ErrTokenAlreadyUsed) {
			s.metrics.RecordDownload(metrics.ResultUsed)
			return nil, token.ErrTokenAlreadyUsed
		}
		return nil, err
	}

	s.metrics.RecordDownload(metrics.ResultSuccess)
	return artifact, nil
}

// Complete records that the caller finished flashing. Calling it again on
// an already completed request is a no-op success, since clients retry
// after transient failures.
func (s *FlashService) Complete(paymentHash string) error {
	request, err := s.store.GetFlashRequest(paymentHash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if request.Status == models.StatusCompleted {
		return nil
	}

	if err := s.store.MarkCompleted(paymentHash, time.Now()); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// A concurrent Complete may have won; that still counts
			current, getErr := s.store.GetFlashRequest(paymentHash)
			if getErr == nil && current.Status == models.StatusCompleted {
				return nil
			}
			return ErrInvalidTransition
		}
		return err
	}
	return nil
}

// Sweep expires requests stuck past the payment window and issued tokens
// that lapsed unconsumed. It runs off the request path on a timer.
func (s *FlashService) Sweep(now time.Time) (int64, error) {
	stale, err := s.store.ExpireStaleRequests(now.Add(-s.paymentWindow))
	if err != nil {
		return 0, err
	}
	lapsed, err := s.store.ExpireLapsedTokens(now)
	if err != nil {
		return stale, err
	}

	total := stale + lapsed
	if total > 0 {
		log.Printf("sweep: expired %d stale request(s), %d lapsed token(s)", stale, lapsed)
		s.metrics.RecordRequestsExpired(total)
	}
	return total, nil
}

// ListRequests returns recent requests for the admin dashboard.
func (s *FlashService) ListRequests(limit int) ([]models.FlashRequest, error) {
	return s.store.ListFlashRequests(limit)
}

// Stats aggregates the admin dashboard numbers. Today starts at local
// midnight.
func (s *FlashService) Stats() (*store.Stats, error) {
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.store.GetStats(todayStart)
}
