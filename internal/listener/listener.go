// Package listener consumes the LNbits settlement stream and drives flash
// requests from pending to token_issued. It runs as one long-lived task and
// never touches caller-facing request handling; the store's conditional
// updates are the only coordination between the two.
package listener

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/lnbits"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/metrics"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/token"
)

// Listener correlates settlement events to pending flash requests, marks
// them paid and mints their download tokens.
type Listener struct {
	store   *store.Store
	tokens  *token.Service
	metrics metrics.Recorder
}

func New(s *store.Store, tokens *token.Service, m metrics.Recorder) *Listener {
	return &Listener{store: s, tokens: tokens, metrics: m}
}

// Run consumes events until the channel closes or the context is
// cancelled. A failure on one event is logged and never stalls the feed.
func (l *Listener) Run(ctx context.Context, events <-chan lnbits.Payment) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payment, ok := <-events:
			if !ok {
				return nil
			}
			if err := l.handle(payment); err != nil {
				log.Printf("listener: payment %s: %v", payment.PaymentHash, err)
				l.metrics.RecordPaymentEvent(metrics.ResultError)
			}
		}
	}
}

// handle processes one settlement event. Unrelated payments and redelivered
// events are discarded; the atomic pending->paid transition serializes
// duplicates that race past the status read.
func (l *Listener) handle(payment lnbits.Payment) error {
	request, err := l.store.GetFlashRequest(payment.PaymentHash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// Not a flash payment; someone else's invoice settled
			l.metrics.RecordPaymentEvent(metrics.ResultUnknown)
			return nil
		}
		return err
	}

	if request.Status != models.StatusPending {
		// Duplicate or late event; the request moved on already
		l.metrics.RecordPaymentEvent(metrics.ResultDuplicate)
		return nil
	}

	settledAt := payment.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now()
	}
	if err := l.store.MarkPaid(payment.PaymentHash, settledAt); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// Lost the race against a redelivered event; nothing to do
			l.metrics.RecordPaymentEvent(metrics.ResultDuplicate)
			return nil
		}
		return err
	}

	l.metrics.RecordPaymentConfirmationLatency(settledAt.Sub(request.CreatedAt))

	signed, expiresAt, err := l.tokens.Mint(
		request.PaymentHash, request.DeviceType, request.FirmwareVersion,
	)
	if err != nil {
		l.metrics.RecordTokenMinted(false)
		return err
	}
	if err := l.store.AttachToken(request.PaymentHash, signed, expiresAt); err != nil {
		// Cannot double-mint: the paid->token_issued guard plus the
		// empty-token check make a second attach a no-op failure
		if errors.Is(err, store.ErrInvalidTransition) {
			l.metrics.RecordPaymentEvent(metrics.ResultDuplicate)
			return nil
		}
		return err
	}

	l.metrics.RecordTokenMinted(true)
	l.metrics.RecordPaymentEvent(metrics.ResultSuccess)
	log.Printf("listener: payment %s confirmed, token issued until %s",
		payment.PaymentHash, expiresAt.Format(time.RFC3339))
	return nil
}
