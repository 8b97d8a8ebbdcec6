package services

import (
	"errors"
	"strings"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"

	"github.com/google/uuid"
)

// PromoValidation is the outcome of checking a promo code.
type PromoValidation struct {
	Valid           bool   `json:"valid"`
	DiscountPercent int    `json:"discount_percent"`
	Message         string `json:"message"`
}

// PromoService manages discount codes.
type PromoService struct {
	store *store.Store
}

func NewPromoService(s *store.Store) *PromoService {
	return &PromoService{store: s}
}

// Validate checks whether a code can currently be redeemed. It never
// consumes a use; redemption happens on invoice creation.
func (s *PromoService) Validate(code string) (*PromoValidation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return &PromoValidation{Valid: false, Message: "no promo code provided"}, nil
	}

	promo, err := s.store.GetPromoCodeByCode(code)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return &PromoValidation{Valid: false, Message: "unknown promo code"}, nil
		}
		return nil, err
	}

	if !promo.Active {
		return &PromoValidation{Valid: false, Message: "promo code is no longer active"}, nil
	}
	if promo.Exhausted() {
		return &PromoValidation{Valid: false, Message: "promo code has been fully redeemed"}, nil
	}

	return &PromoValidation{
		Valid:           true,
		DiscountPercent: promo.DiscountPercent,
		Message:         "promo code applied",
	}, nil
}

// Redeem consumes one use of the code and returns its discount percentage.
func (s *PromoService) Redeem(code string) (int, error) {
	validation, err := s.Validate(code)
	if err != nil {
		return 0, err
	}
	if !validation.Valid {
		return 0, ErrPromoInvalid
	}
	if err := s.store.IncrementPromoUsage(strings.TrimSpace(code)); err != nil {
		if errors.Is(err, store.ErrPromoExhausted) {
			return 0, ErrPromoInvalid
		}
		return 0, err
	}
	return validation.DiscountPercent, nil
}

// Create registers a new promo code.
func (s *PromoService) Create(code string, discountPercent, maxUses int) (*models.PromoCode, error) {
	code = strings.TrimSpace(code)
	if code == "" || discountPercent < 1 || discountPercent > 100 || maxUses < 1 {
		return nil, ErrPromoInvalid
	}
	promo := &models.PromoCode{
		ID:              uuid.New().String(),
		Code:            code,
		DiscountPercent: discountPercent,
		MaxUses:         maxUses,
		Active:          true,
	}
	if err := s.store.CreatePromoCode(promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PromoService) List() ([]models.PromoCode, error) {
	return s.store.ListPromoCodes()
}

func (s *PromoService) Delete(id string) error {
	return s.store.DeletePromoCode(id)
}
