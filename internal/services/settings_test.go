package services

import (
	"testing"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSettings(t *testing.T) (*SettingsService, *store.Store) {
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return NewSettingsService(s, 5000), s
}

func TestGetPriceDefault(t *testing.T) {
	svc, _ := setupSettings(t)

	price, err := svc.GetPrice()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), price)
}

func TestSetAndGetPrice(t *testing.T) {
	svc, _ := setupSettings(t)

	require.NoError(t, svc.SetPrice(2500))

	price, err := svc.GetPrice()
	require.NoError(t, err)
	assert.Equal(t, int64(2500), price)
}

func TestGetPriceIgnoresCorruptValue(t *testing.T) {
	svc, s := setupSettings(t)

	require.NoError(t, s.SetSetting(models.SettingPriceSats, "not-a-number"))

	price, err := svc.GetPrice()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), price)
}

func TestWalletID(t *testing.T) {
	svc, _ := setupSettings(t)

	walletID, err := svc.GetWalletID()
	require.NoError(t, err)
	assert.Empty(t, walletID)

	require.NoError(t, svc.SetWalletID("wallet-42"))

	walletID, err = svc.GetWalletID()
	require.NoError(t, err)
	assert.Equal(t, "wallet-42", walletID)
}
