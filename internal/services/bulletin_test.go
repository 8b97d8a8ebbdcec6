package services

import (
	"testing"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBulletins(t *testing.T) *BulletinService {
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return NewBulletinService(s)
}

func TestBulletinCreateAndList(t *testing.T) {
	svc := setupBulletins(t)

	b, err := svc.Create("  v1.3.0 released  ")
	require.NoError(t, err)
	assert.Equal(t, "v1.3.0 released", b.Message)
	assert.True(t, b.Active)

	active, err := svc.ListActive()
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBulletinCreateRejectsEmpty(t *testing.T) {
	svc := setupBulletins(t)

	_, err := svc.Create("   ")
	assert.ErrorIs(t, err, ErrBulletinInvalid)
}

func TestBulletinUpdate(t *testing.T) {
	svc := setupBulletins(t)
	b, err := svc.Create("draft")
	require.NoError(t, err)

	message := "final wording"
	inactive := false
	updated, err := svc.Update(b.ID, &message, &inactive)
	require.NoError(t, err)
	assert.Equal(t, "final wording", updated.Message)
	assert.False(t, updated.Active)

	// Deactivated bulletins drop off the public listing.
	active, err := svc.ListActive()
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBulletinUpdateUnknownID(t *testing.T) {
	svc := setupBulletins(t)

	active := true
	_, err := svc.Update("missing", nil, &active)
	assert.ErrorIs(t, err, ErrBulletinInvalid)
}

func TestBulletinDelete(t *testing.T) {
	svc := setupBulletins(t)
	b, err := svc.Create("to be removed")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(b.ID))

	all, err := svc.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}
