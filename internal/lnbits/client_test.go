package lnbits

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	c, err := New(Config{
		BaseURL:       baseURL,
		APIKey:        "test-api-key",
		Timeout:       5 * time.Second,
		MaxRetries:    1,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestCreateInvoice(t *testing.T) {
	var gotBody createInvoiceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payments", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("X-Api-Key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payment_hash":"hash123","bolt11":"lnbc50u1abc"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	invoice, err := c.CreateInvoice(
		context.Background(), 5000, "TNA Flash: NerdQX v1.2.3", 15*time.Minute,
		map[string]any{"tag": "tnaflasher"},
	)
	require.NoError(t, err)
	assert.Equal(t, "hash123", invoice.PaymentHash)
	assert.Equal(t, "lnbc50u1abc", invoice.Bolt11)

	assert.False(t, gotBody.Out)
	assert.Equal(t, int64(5000), gotBody.Amount)
	assert.Equal(t, "TNA Flash: NerdQX v1.2.3", gotBody.Memo)
	assert.Equal(t, int64(900), gotBody.Expiry)
	assert.Equal(t, "tnaflasher", gotBody.Extra["tag"])
}

func TestCreateInvoiceLegacyPaymentRequestField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payment_hash":"hash123","payment_request":"lnbc50u1legacy"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	invoice, err := c.CreateInvoice(context.Background(), 5000, "memo", time.Minute, nil)
	require.NoError(t, err)
	assert.Equal(t, "lnbc50u1legacy", invoice.Bolt11)
}

func TestCreateInvoiceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"detail":"wallet not found"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.CreateInvoice(context.Background(), 5000, "memo", time.Minute, nil)
	require.ErrorIs(t, err, ErrInvoiceCreation)
	assert.Contains(t, err.Error(), "wallet not found")
}

func TestCreateInvoiceMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.CreateInvoice(context.Background(), 5000, "memo", time.Minute, nil)
	assert.ErrorIs(t, err, ErrInvoiceCreation)
}

func TestSubscribePayments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/sse", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		// One settled payment, one event of another type, one malformed
		// payload. Only the first should come out of the channel.
		fmt.Fprintf(w, "event: payment-received\n")
		fmt.Fprintf(w, "data: {\"payment_hash\":\"hash123\",\"amount\":5000000,\"time\":1700000000}\n")
		fmt.Fprintf(w, "\n")
		fmt.Fprintf(w, "event: keepalive\n")
		fmt.Fprintf(w, "data: {\"payment_hash\":\"ignored\"}\n")
		fmt.Fprintf(w, "\n")
		fmt.Fprintf(w, "event: payment-received\n")
		fmt.Fprintf(w, "data: not-json\n")
		fmt.Fprintf(w, "\n")
		flusher.Flush()

		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := c.SubscribePayments(ctx)

	select {
	case payment := <-events:
		assert.Equal(t, "hash123", payment.PaymentHash)
		assert.Equal(t, int64(5000), payment.AmountSats, "msat amount should convert to sats")
		assert.Equal(t, int64(1700000000), payment.SettledAt.Unix())
	case <-ctx.Done():
		t.Fatal("no payment event received")
	}

	// Cancel and drain; the channel must close.
	cancel()
	for range events {
		// discard
	}
}

func TestSubscribePaymentsReconnects(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if connections.Add(1) == 1 {
			// First connection dies immediately.
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: payment-received\n")
		fmt.Fprintf(w, "data: {\"payment_hash\":\"after-reconnect\",\"amount\":1000,\"time\":1700000000}\n")
		fmt.Fprintf(w, "\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events := c.SubscribePayments(ctx)

	select {
	case payment := <-events:
		assert.Equal(t, "after-reconnect", payment.PaymentHash)
		assert.GreaterOrEqual(t, connections.Load(), int32(2))
	case <-ctx.Done():
		t.Fatal("no payment received after reconnect")
	}
}

func TestNextReconnectDelay(t *testing.T) {
	tests := []struct {
		name      string
		current   time.Duration
		connected time.Duration
		want      time.Duration
	}{
		{"doubles after a quick failure", time.Second, 100 * time.Millisecond, 2 * time.Second},
		{"keeps doubling while the outage lasts", 8 * time.Second, time.Second, 16 * time.Second},
		{"caps at the maximum", 16 * time.Second, time.Second, 30 * time.Second},
		{"stays at the maximum", 30 * time.Second, time.Second, 30 * time.Second},
		{"resets after a healthy stream", 30 * time.Second, 2 * time.Minute, time.Second},
		{"resets at exactly the healthy age", 16 * time.Second, time.Minute, time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nextReconnectDelay(tc.current, tc.connected))
		})
	}
}
