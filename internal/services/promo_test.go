package services

import (
	"testing"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPromos(t *testing.T) *PromoService {
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return NewPromoService(s)
}

func TestPromoValidate(t *testing.T) {
	svc := setupPromos(t)
	_, err := svc.Create("HALF", 50, 2)
	require.NoError(t, err)

	v, err := svc.Validate("HALF")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 50, v.DiscountPercent)

	// Validation is free; no use is consumed.
	v, err = svc.Validate("HALF")
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestPromoValidateUnknownCode(t *testing.T) {
	svc := setupPromos(t)

	v, err := svc.Validate("NOPE")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	v, err = svc.Validate("  ")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestPromoRedeemConsumesUses(t *testing.T) {
	svc := setupPromos(t)
	_, err := svc.Create("ONCE", 25, 1)
	require.NoError(t, err)

	discount, err := svc.Redeem("ONCE")
	require.NoError(t, err)
	assert.Equal(t, 25, discount)

	_, err = svc.Redeem("ONCE")
	assert.ErrorIs(t, err, ErrPromoInvalid)

	v, err := svc.Validate("ONCE")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestPromoCreateValidation(t *testing.T) {
	svc := setupPromos(t)

	_, err := svc.Create("", 50, 1)
	assert.ErrorIs(t, err, ErrPromoInvalid)

	_, err = svc.Create("CODE", 0, 1)
	assert.ErrorIs(t, err, ErrPromoInvalid)

	_, err = svc.Create("CODE", 101, 1)
	assert.ErrorIs(t, err, ErrPromoInvalid)

	_, err = svc.Create("CODE", 50, 0)
	assert.ErrorIs(t, err, ErrPromoInvalid)
}

func TestPromoListAndDelete(t *testing.T) {
	svc := setupPromos(t)
	promo, err := svc.Create("TEMP", 10, 5)
	require.NoError(t, err)

	codes, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, codes, 1)

	require.NoError(t, svc.Delete(promo.ID))

	codes, err = svc.List()
	require.NoError(t, err)
	assert.Empty(t, codes)
}
