// Package stripe implements payment.Provider against the Stripe HTTP API:
// hosted checkout session creation and signed webhook event parsing.
package stripe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/int-market-project/international-market/internal/domain/payment"
)

const (
	defaultBaseURL = "https://api.stripe.com"
	providerName   = "stripe"

	// signatureTolerance bounds the age of a signed webhook payload to limit
	// replay of captured events.
	signatureTolerance = 5 * time.Minute
)

var _ payment.Provider = (*Client)(nil)

// Client talks to Stripe with a secret API key and verifies webhook payloads
// with the endpoint's signing secret.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
	now           func() time.Time
}

// Config holds the Stripe credentials and optional overrides.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the Stripe API host, used by tests.
	BaseURL string
	// HTTPClient overrides the default client, used by tests.
	HTTPClient *http.Client
}

// New creates a Stripe client.
func New(cfg Config) *Client {
	c := &Client{
		httpClient:    cfg.HTTPClient,
		baseURL:       cfg.BaseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		now:           time.Now,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	return c
}

// Name returns the provider identifier stored on transaction logs.
func (c *Client) Name() string { return providerName }

// CreateSession opens a hosted checkout session for the given amount. The
// customer id travels in session metadata so the completion webhook can
// recover it without any request context.
func (c *Client) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amountToCents(req.Amount), 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[customer_id]", strconv.FormatInt(req.CustomerID, 10))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("stripe responded %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	if session.URL == "" {
		return nil, errors.New("stripe session has no redirect url")
	}

	return &payment.Session{ID: session.ID, URL: session.URL}, nil
}

// amountToCents converts a decimal dollar amount to integer cents.
func amountToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
