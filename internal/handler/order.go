package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/int-market-project/international-market/internal/domain/customer"
	"github.com/int-market-project/international-market/internal/domain/order"
	"github.com/int-market-project/international-market/internal/domain/payment"
)

type orderPayload struct {
	ID            int64          `json:"id"`
	CustomerID    int64          `json:"customer_id"`
	Status        string         `json:"status"`
	Items         []order.Item   `json:"items"`
	Totals        checkoutTotals `json:"totals"`
	CouponCode    string         `json:"coupon_code,omitempty"`
	PaymentMethod string         `json:"payment_method"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Notes         string         `json:"notes,omitempty"`

	ShippingAddress order.Address `json:"shipping_address"`

	OrderedAt        time.Time  `json:"ordered_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	PackedAt         *time.Time `json:"packed_at,omitempty"`
	OutForDeliveryAt *time.Time `json:"out_for_delivery_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CanceledAt       *time.Time `json:"canceled_at,omitempty"`
}

func orderToPayload(o *order.Order) orderPayload {
	return orderPayload{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		Items:         o.Items,
		Totals:        pricingToTotals(o.Pricing),
		CouponCode:    o.CouponCode,
		PaymentMethod: string(o.PaymentMethod),
		TransactionID: o.TransactionID,
		Notes:         o.Notes,

		ShippingAddress: o.ShippingAddress,

		OrderedAt:        o.OrderedAt,
		ConfirmedAt:      o.ConfirmedAt,
		PackedAt:         o.PackedAt,
		OutForDeliveryAt: o.OutForDeliveryAt,
		DeliveredAt:      o.DeliveredAt,
		CanceledAt:       o.CanceledAt,
	}
}

func pricingToTotals(p order.Pricing) checkoutTotals {
	return checkoutTotals{
		Subtotal:           p.Subtotal,
		DiscountAmount:     p.DiscountAmount,
		DiscountedSubtotal: p.DiscountedSubtotal,
		Tax:                p.Tax,
		ShippingFee:        p.ShippingFee,
		Total:              p.Total,
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// LatestOrder returns the id of the customer's most recent order, used by the
// provider success redirect to land on the confirmation page.
func (h *Handler) LatestOrder(w http.ResponseWriter, r *http.Request) {
	id, err := h.orders.LatestIDForCustomer(r.Context(), customerID(r))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "no orders yet")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"order_id": id})
}

// GetOrder returns one of the customer's own orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.orders.GetForCustomer(r.Context(), id, customerID(r))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, orderToPayload(o))
}

// AdminOpenOrders returns all non-terminal orders grouped by status, oldest
// first within each group.
func (h *Handler) AdminOpenOrders(w http.ResponseWriter, r *http.Request) {
	open, err := h.orders.ListOpen(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	grouped := map[string][]orderPayload{}
	for i := range open {
		key := string(open[i].Status)
		grouped[key] = append(grouped[key], orderToPayload(&open[i]))
	}
	writeJSON(w, r, http.StatusOK, grouped)
}

// AdminGetOrder returns any order by id.
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, orderToPayload(o))
}

type updateStatusRequest struct {
	NewStatus    string `json:"new_status"`
	AdminMessage string `json:"admin_message"`
}

// AdminUpdateOrderStatus applies a status transition and notifies the
// customer by email, best-effort.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid order id")
		return
	}
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.states.Transition(r.Context(), id, order.Status(req.NewStatus), req.AdminMessage)
	if err != nil {
		var itErr *order.InvalidTransitionError
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "order not found")
		case errors.As(err, &itErr):
			writeError(w, r, http.StatusConflict, itErr.Error())
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	h.sendStatusEmail(r, o, req.AdminMessage)

	writeJSON(w, r, http.StatusOK, orderToPayload(o))
}

// sendStatusEmail mails the customer about the new status. Failures are
// logged and swallowed; the transition already happened.
func (h *Handler) sendStatusEmail(r *http.Request, o *order.Order, adminMessage string) {
	if h.mailer == nil {
		return
	}
	lg := zctx.From(r.Context())

	cust, err := h.customers.GetByID(r.Context(), o.CustomerID)
	if err != nil {
		if !errors.Is(err, customer.ErrNotFound) {
			lg.Warn("load customer for status email",
				zap.Int64("customer_id", o.CustomerID), zap.Error(err))
		}
		return
	}
	if cust.Email == "" {
		return
	}
	if err := h.mailer.SendStatusUpdate(cust.Email, cust.FullName(), o, adminMessage); err != nil {
		lg.Warn("send status email",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

type transactionPayload struct {
	ID                      string          `json:"id"`
	OrderID                 int64           `json:"order_id,omitempty"`
	CustomerID              int64           `json:"customer_id"`
	PaymentMethod           string          `json:"payment_method"`
	Status                  string          `json:"status"`
	Amount                  decimal.Decimal `json:"amount"`
	Provider                string          `json:"provider,omitempty"`
	ProviderPaymentIntentID string          `json:"provider_payment_intent_id,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
}

func transactionToPayload(t *payment.Transaction) transactionPayload {
	return transactionPayload{
		ID:                      t.ID,
		OrderID:                 t.OrderID,
		CustomerID:              t.CustomerID,
		PaymentMethod:           string(t.PaymentMethod),
		Status:                  string(t.Status),
		Amount:                  t.Amount,
		Provider:                t.Provider,
		ProviderPaymentIntentID: t.ProviderPaymentIntentID,
		CreatedAt:               t.CreatedAt,
	}
}

const defaultTransactionLimit = 50

// AdminRecentTransactions returns the newest transaction logs.
func (h *Handler) AdminRecentTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.txs.ListRecent(r.Context(), defaultTransactionLimit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	out := make([]transactionPayload, len(txs))
	for i := range txs {
		out[i] = transactionToPayload(&txs[i])
	}
	writeJSON(w, r, http.StatusOK, out)
}

// AdminCustomerTransactions returns one customer's newest transaction logs.
func (h *Handler) AdminCustomerTransactions(w http.ResponseWriter, r *http.Request) {
	cid, ok := pathID(r, "customerID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid customer id")
		return
	}
	txs, err := h.txs.ListByCustomer(r.Context(), cid, defaultTransactionLimit)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	out := make([]transactionPayload, len(txs))
	for i := range txs {
		out[i] = transactionToPayload(&txs[i])
	}
	writeJSON(w, r, http.StatusOK, out)
}

// AdminGetShippingFee returns the current flat shipping fee.
func (h *Handler) AdminGetShippingFee(w http.ResponseWriter, r *http.Request) {
	h.GetShippingFee(w, r)
}

type shippingFeeRequest struct {
	ShippingFee decimal.Decimal `json:"shipping_fee"`
}

// AdminSetShippingFee stores a new flat shipping fee. In-flight drafts keep
// the fee they were quoted.
func (h *Handler) AdminSetShippingFee(w http.ResponseWriter, r *http.Request) {
	var req shippingFeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ShippingFee.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "shipping fee cannot be negative")
		return
	}
	if err := h.settings.SetShippingFee(r.Context(), req.ShippingFee); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"shipping_fee": req.ShippingFee.StringFixed(2)})
}
