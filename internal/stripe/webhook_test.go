package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/int-market-project/international-market/internal/domain/payment"
)

const testWebhookSecret = "whsec_test_secret"

var webhookNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testClient() *Client {
	c := New(Config{SecretKey: "sk_test", WebhookSecret: testWebhookSecret})
	c.now = func() time.Time { return webhookNow }
	return c
}

// sign produces a Stripe-Signature header for payload at the given time.
func sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedPayload(paymentIntent, customerID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"payment_intent": %q,
				"amount_total": 10035,
				"metadata": {"customer_id": %q}
			}
		}
	}`, paymentIntent, customerID))
}

func TestParseEventCompletedSession(t *testing.T) {
	c := testClient()
	payload := completedPayload("pi_123", "7")

	ev, err := c.ParseEvent(payload, sign(payload, testWebhookSecret, webhookNow))

	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "stripe", ev.Provider)
	assert.Equal(t, "pi_123", ev.PaymentIntentID)
	assert.Equal(t, int64(7), ev.CustomerID)
}

func TestParseEventIgnoresOtherTypes(t *testing.T) {
	c := testClient()
	payload := []byte(`{"id": "evt_2", "type": "payment_intent.created", "data": {"object": {}}}`)

	ev, err := c.ParseEvent(payload, sign(payload, testWebhookSecret, webhookNow))

	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestParseEventNullFields(t *testing.T) {
	c := testClient()
	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {"payment_intent": null, "metadata": null}}
	}`)

	ev, err := c.ParseEvent(payload, sign(payload, testWebhookSecret, webhookNow))

	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Empty(t, ev.PaymentIntentID)
	assert.Zero(t, ev.CustomerID)
}

func TestParseEventSignatureFailures(t *testing.T) {
	c := testClient()
	payload := completedPayload("pi_123", "7")

	tests := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"garbage header", "not-a-signature"},
		{"wrong secret", sign(payload, "whsec_other", webhookNow)},
		{"stale timestamp", sign(payload, testWebhookSecret, webhookNow.Add(-6*time.Minute))},
		{"future timestamp", sign(payload, testWebhookSecret, webhookNow.Add(6*time.Minute))},
		{"missing timestamp", "v1=deadbeef"},
		{"missing signature", "t=1750000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ParseEvent(payload, tt.header)
			require.ErrorIs(t, err, payment.ErrBadSignature)
		})
	}
}

func TestParseEventTamperedPayload(t *testing.T) {
	c := testClient()
	payload := completedPayload("pi_123", "7")
	header := sign(payload, testWebhookSecret, webhookNow)

	tampered := completedPayload("pi_123", "8")
	_, err := c.ParseEvent(tampered, header)

	require.ErrorIs(t, err, payment.ErrBadSignature)
}

func TestParseEventNoSecretConfigured(t *testing.T) {
	c := New(Config{SecretKey: "sk_test"})
	payload := completedPayload("pi_123", "7")

	_, err := c.ParseEvent(payload, sign(payload, testWebhookSecret, webhookNow))

	require.ErrorIs(t, err, payment.ErrBadSignature)
}

func TestCreateSession(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"mode":        r.PostFormValue("mode"),
			"amount":      r.PostFormValue("line_items[0][price_data][unit_amount]"),
			"customer_id": r.PostFormValue("metadata[customer_id]"),
			"success_url": r.PostFormValue("success_url"),
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "cs_test_1", "url": "https://checkout.stripe.com/pay/cs_test_1"}`)
	}))
	defer srv.Close()

	c := New(Config{
		SecretKey:  "sk_test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})

	session, err := c.CreateSession(t.Context(), payment.SessionRequest{
		CustomerID:  7,
		Amount:      decimal.RequireFromString("100.35"),
		Description: "International Market Order",
		SuccessURL:  "https://shop.test/thanks",
		CancelURL:   "https://shop.test/cart",
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", session.URL)
	assert.Equal(t, "payment", gotForm["mode"])
	assert.Equal(t, "10035", gotForm["amount"])
	assert.Equal(t, "7", gotForm["customer_id"])
	assert.Equal(t, "https://shop.test/thanks", gotForm["success_url"])
}

func TestCreateSessionErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "Invalid API Key"}}`)
	}))
	defer srv.Close()

	c := New(Config{SecretKey: "sk_bad", BaseURL: srv.URL, HTTPClient: srv.Client()})

	_, err := c.CreateSession(t.Context(), payment.SessionRequest{
		Amount: decimal.RequireFromString("10"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAmountToCents(t *testing.T) {
	tests := []struct {
		amount string
		cents  int64
	}{
		{"100.35", 10035},
		{"0.01", 1},
		{"19.99", 1999},
		{"5", 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.cents, amountToCents(decimal.RequireFromString(tt.amount)), tt.amount)
	}
}
