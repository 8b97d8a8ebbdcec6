// Package lnbits talks to the LNbits instance that settles payments: it
// creates invoices over the REST API and subscribes to the SSE payment
// stream that feeds the confirmation listener.
package lnbits

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
	retry "github.com/appleboy/go-httpretry"
)

// ErrInvoiceCreation indicates the upstream wallet rejected or failed the
// invoice request.
var ErrInvoiceCreation = errors.New("lnbits: invoice creation failed")

// Invoice is a minted Lightning invoice.
type Invoice struct {
	PaymentHash string `json:"payment_hash"`
	Bolt11      string `json:"bolt11"`
}

// Payment is one settlement event from the payment stream.
type Payment struct {
	PaymentHash string    `json:"payment_hash"`
	AmountSats  int64     `json:"amount_sats"`
	SettledAt   time.Time `json:"settled_at"`
}

// Config carries the connection settings for one LNbits instance.
type Config struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxRetries         int
	RetryDelay         time.Duration
	MaxRetryDelay      time.Duration
}

// Client is the LNbits API client. Invoice creation goes through the retry
// client; the SSE stream uses the bare authenticated client since the
// subscription manages its own reconnects.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryClient *retry.Client
}

func New(cfg Config) (*Client, error) {
	// LNbits authenticates with an X-Api-Key header on every request
	client, err := httpclient.NewAuthClient(
		httpclient.AuthModeSimple,
		cfg.APIKey,
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithHeaderName("X-Api-Key"),
		httpclient.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}

	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(client),
		retry.WithMaxRetries(cfg.MaxRetries),
		retry.WithInitialRetryDelay(cfg.RetryDelay),
		retry.WithMaxRetryDelay(cfg.MaxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  client,
		retryClient: retryClient,
	}, nil
}

type createInvoiceRequest struct {
	Out    bool           `json:"out"`
	Amount int64          `json:"amount"`
	Memo   string         `json:"memo"`
	Expiry int64          `json:"expiry,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

type createInvoiceResponse struct {
	PaymentHash    string `json:"payment_hash"`
	Bolt11         string `json:"bolt11"`
	PaymentRequest string `json:"payment_request"`
	Detail         string `json:"detail"`
}

// CreateInvoice mints an incoming invoice for the given amount on the
// configured wallet. The wallet is selected by the API key.
func (c *Client) CreateInvoice(
	ctx context.Context,
	amountSats int64,
	memo string,
	expiry time.Duration,
	extra map[string]any,
) (*Invoice, error) {
	reqBody := createInvoiceRequest{
		Out:    false,
		Amount: amountSats,
		Memo:   memo,
		Expiry: int64(expiry.Seconds()),
		Extra:  extra,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.retryClient.Post(
		ctx,
		c.baseURL+"/api/v1/payments",
		retry.WithBody("application/json", bytes.NewBuffer(jsonData)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvoiceCreation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response", ErrInvoiceCreation)
	}

	var apiResp createInvoiceResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Detail != "" {
			return nil, fmt.Errorf("%w: HTTP %d - %s", ErrInvoiceCreation, resp.StatusCode, apiResp.Detail)
		}
		return nil, fmt.Errorf("%w: HTTP %d", ErrInvoiceCreation, resp.StatusCode)
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvoiceCreation, err)
	}

	bolt11 := apiResp.Bolt11
	if bolt11 == "" {
		// Older LNbits versions report the invoice as payment_request
		bolt11 = apiResp.PaymentRequest
	}
	if apiResp.PaymentHash == "" || bolt11 == "" {
		return nil, fmt.Errorf("%w: response missing payment_hash or bolt11", ErrInvoiceCreation)
	}

	return &Invoice{PaymentHash: apiResp.PaymentHash, Bolt11: bolt11}, nil
}

// ssePayment is the wire shape of a payment on the SSE stream. LNbits
// reports amounts in millisatoshis.
type ssePayment struct {
	PaymentHash string  `json:"payment_hash"`
	Amount      int64   `json:"amount"`
	Time        float64 `json:"time"`
}

// SubscribePayments opens the LNbits SSE payment stream and fans settled
// payments into the returned channel. The subscription reconnects with
// backoff until the context is cancelled, at which point the channel is
// closed. Malformed events are logged and skipped.
func (c *Client) SubscribePayments(ctx context.Context) <-chan Payment {
	events := make(chan Payment, 16)

	go func() {
		defer close(events)
		backoff := initialReconnectDelay
		for {
			started := time.Now()
			err := c.streamPayments(ctx, events)
			backoff = nextReconnectDelay(backoff, time.Since(started))
			if err != nil && ctx.Err() == nil {
				log.Printf("lnbits: payment stream closed: %v (reconnecting in %s)", err, backoff)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}()

	return events
}

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second

	// A stream that stayed up this long counts as healthy and resets the
	// backoff; anything shorter is treated as part of the same outage.
	healthyStreamAge = time.Minute
)

func nextReconnectDelay(current, connected time.Duration) time.Duration {
	if connected >= healthyStreamAge {
		return initialReconnectDelay
	}
	next := current * 2
	if next > maxReconnectDelay {
		next = maxReconnectDelay
	}
	return next
}

func (c *Client) streamPayments(ctx context.Context, events chan<- Payment) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/api/v1/payments/sse", nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream must outlive the request timeout, so bypass the pooled
	// client's deadline by cloning it without one.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if eventName != "payment-received" {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var p ssePayment
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				log.Printf("lnbits: skipping malformed payment event: %v", err)
				continue
			}
			if p.PaymentHash == "" {
				continue
			}
			payment := Payment{
				PaymentHash: p.PaymentHash,
				AmountSats:  p.Amount / 1000,
				SettledAt:   time.Unix(int64(p.Time), 0),
			}
			select {
			case events <- payment:
			case <-ctx.Done():
				return ctx.Err()
			}
		case line == "":
			eventName = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
