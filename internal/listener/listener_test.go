package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/lnbits"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/metrics"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupListener(t *testing.T) (*Listener, *store.Store) {
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	tokens := token.NewService("test-secret-at-least-32-characters", 5*time.Minute, "test")
	return New(s, tokens, &metrics.NoopMetrics{}), s
}

func createPendingRequest(t *testing.T, s *store.Store) *models.FlashRequest {
	r := &models.FlashRequest{
		PaymentHash:     uuid.New().String(),
		Bolt11:          "lnbc50u1test",
		DeviceType:      "NerdQX",
		FirmwareVersion: "v1.2.3",
		AmountSats:      5000,
		Status:          models.StatusPending,
	}
	require.NoError(t, s.CreateFlashRequest(r))
	return r
}

func TestHandleConfirmsPayment(t *testing.T) {
	l, s := setupListener(t)
	r := createPendingRequest(t, s)

	err := l.handle(lnbits.Payment{
		PaymentHash: r.PaymentHash,
		AmountSats:  5000,
		SettledAt:   time.Now(),
	})
	require.NoError(t, err)

	got, err := s.GetFlashRequest(r.PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTokenIssued, got.Status)
	assert.NotEmpty(t, got.Token)
	require.NotNil(t, got.TokenExpiresAt)
	assert.NotNil(t, got.PaidAt)
}

func TestHandleDuplicateEventIsNoOp(t *testing.T) {
	l, s := setupListener(t)
	r := createPendingRequest(t, s)

	payment := lnbits.Payment{PaymentHash: r.PaymentHash, SettledAt: time.Now()}
	require.NoError(t, l.handle(payment))

	first, err := s.GetFlashRequest(r.PaymentHash)
	require.NoError(t, err)

	// Redelivered event must not re-mint or disturb the issued token.
	require.NoError(t, l.handle(payment))

	second, err := s.GetFlashRequest(r.PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, models.StatusTokenIssued, second.Status)
}

func TestHandleConcurrentDuplicateEventsMintOnce(t *testing.T) {
	l, s := setupListener(t)
	r := createPendingRequest(t, s)
	payment := lnbits.Payment{PaymentHash: r.PaymentHash, SettledAt: time.Now()}

	// Redeliveries racing each other must settle the request exactly once.
	const racers = 8
	errs := make([]error, racers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = l.handle(payment)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	got, err := s.GetFlashRequest(r.PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTokenIssued, got.Status)
	assert.NotEmpty(t, got.Token)
	_, err = l.tokens.Validate(got, got.Token)
	assert.NoError(t, err)
}

func TestHandleUnknownPaymentIsDiscarded(t *testing.T) {
	l, _ := setupListener(t)

	// Someone else's invoice settled on the same wallet.
	err := l.handle(lnbits.Payment{PaymentHash: "not-ours", SettledAt: time.Now()})
	assert.NoError(t, err)
}

func TestHandleFillsMissingSettlementTime(t *testing.T) {
	l, s := setupListener(t)
	r := createPendingRequest(t, s)

	require.NoError(t, l.handle(lnbits.Payment{PaymentHash: r.PaymentHash}))

	got, err := s.GetFlashRequest(r.PaymentHash)
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	assert.WithinDuration(t, time.Now(), *got.PaidAt, 5*time.Second)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	l, _ := setupListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan lnbits.Payment)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, events) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on context cancel")
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	l, s := setupListener(t)
	r := createPendingRequest(t, s)

	events := make(chan lnbits.Payment, 1)
	events <- lnbits.Payment{PaymentHash: r.PaymentHash, SettledAt: time.Now()}
	close(events)

	err := l.Run(context.Background(), events)
	require.NoError(t, err)

	got, err := s.GetFlashRequest(r.PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTokenIssued, got.Status)
}
