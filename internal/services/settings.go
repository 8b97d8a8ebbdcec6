package services

import (
	"errors"
	"strconv"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"
)

// SettingsService reads and writes the key-value configuration: the flash
// price and the receiving wallet.
type SettingsService struct {
	store        *store.Store
	defaultPrice int64
}

func NewSettingsService(s *store.Store, defaultPrice int64) *SettingsService {
	return &SettingsService{store: s, defaultPrice: defaultPrice}
}

// GetPrice returns the configured flash price in sats, falling back to the
// default when nothing is stored.
func (s *SettingsService) GetPrice() (int64, error) {
	value, err := s.store.GetSetting(models.SettingPriceSats)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return s.defaultPrice, nil
		}
		return 0, err
	}
	price, err := strconv.ParseInt(value, 10, 64)
	if err != nil || price <= 0 {
		return s.defaultPrice, nil
	}
	return price, nil
}

func (s *SettingsService) SetPrice(priceSats int64) error {
	return s.store.SetSetting(models.SettingPriceSats, strconv.FormatInt(priceSats, 10))
}

// GetWalletID returns the configured receiving wallet, or "" if unset.
func (s *SettingsService) GetWalletID() (string, error) {
	value, err := s.store.GetSetting(models.SettingWalletID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *SettingsService) SetWalletID(walletID string) error {
	return s.store.SetSetting(models.SettingWalletID, walletID)
}
