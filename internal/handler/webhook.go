package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/int-market-project/international-market/internal/domain/payment"
)

// maxWebhookBody caps the callback payload size; provider events are small.
const maxWebhookBody = 1 << 20

// PaymentWebhook handles asynchronous completion callbacks from the payment
// provider. Only a signature failure is rejected; every other outcome is
// acknowledged with 200 so the provider stops retrying, and internal failures
// are logged for reconciliation.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, r, http.StatusServiceUnavailable, "online payments are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, err := h.provider.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		zctx.From(r.Context()).Warn("parse webhook event", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}
	if ev == nil {
		// Authentic but not a completion event.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.coordinator.CompleteOnlinePayment(r.Context(), *ev); err != nil {
		zctx.From(r.Context()).Error("complete online payment",
			zap.String("payment_intent_id", ev.PaymentIntentID),
			zap.Int64("customer_id", ev.CustomerID),
			zap.Error(err),
		)
	}
	w.WriteHeader(http.StatusOK)
}
