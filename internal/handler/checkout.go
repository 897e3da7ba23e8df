package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/int-market-project/international-market/internal/domain/checkout"
	"github.com/int-market-project/international-market/internal/domain/coupon"
	"github.com/int-market-project/international-market/internal/domain/order"
)

type draftRequest struct {
	Items      []order.Item `json:"items"`
	CouponCode string       `json:"coupon_code"`
}

type draftResponse struct {
	Totals     checkout.Totals `json:"totals"`
	Items      []order.Item    `json:"items"`
	CouponCode string          `json:"coupon_code,omitempty"`
	Coupon     *coupon.Summary `json:"coupon,omitempty"`
}

// BuildDraft prices the submitted line items server-side, applies the
// optional coupon and stores the result as the customer's active draft.
func (h *Handler) BuildDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cid := customerID(r)
	draft, summary, err := h.builder.Build(r.Context(), cid, req.Items, req.CouponCode)
	if err != nil {
		h.writeDraftError(w, r, err)
		return
	}

	if err := h.coordinator.SaveDraft(r.Context(), draft); err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, draftResponse{
		Totals:     draft.Totals,
		Items:      draft.Items,
		CouponCode: draft.CouponCode,
		Coupon:     summary,
	})
}

func (h *Handler) writeDraftError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *checkout.InvalidQuantityError
		pnfErr *checkout.ProductNotFoundError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyItems):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr), errors.As(err, &pnfErr):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case coupon.UserFacing(err):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

// GetDraft returns the customer's active draft.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.coordinator.GetDraft(r.Context(), customerID(r))
	if err != nil {
		if errors.Is(err, checkout.ErrDraftNotFound) {
			writeError(w, r, http.StatusNotFound, "no active checkout")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, draftResponse{
		Totals:     draft.Totals,
		Items:      draft.Items,
		CouponCode: draft.CouponCode,
	})
}

// DeleteDraft abandons the customer's active draft.
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.AbandonDraft(r.Context(), customerID(r)); err != nil {
		writeInternalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placeOrderRequest struct {
	ShippingAddress order.Address `json:"shipping_address"`
	Notes           string        `json:"notes"`
	PaymentMethod   string        `json:"payment_method"`
}

// PlaceOrder runs the synchronous cash-on-delivery checkout over the active
// draft.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentMethod != string(order.PaymentCOD) {
		writeError(w, r, http.StatusBadRequest, "unsupported payment method")
		return
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	orderID, err := h.coordinator.PlaceCODOrder(r.Context(), customerID(r), req.ShippingAddress, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrDraftNotFound):
			writeError(w, r, http.StatusConflict, "no active checkout")
		case coupon.UserFacing(err):
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]int64{"order_id": orderID})
}

// StartPaymentSession opens a hosted provider session for the active draft
// and returns the redirect URL.
func (h *Handler) StartPaymentSession(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	url, err := h.coordinator.StartOnlinePayment(r.Context(), customerID(r), req.ShippingAddress, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrDraftNotFound):
			writeError(w, r, http.StatusConflict, "no active checkout")
		case errors.Is(err, checkout.ErrOnlinePaymentsDisabled):
			writeError(w, r, http.StatusServiceUnavailable, err.Error())
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"url": url})
}

// GetShippingFee returns the current flat shipping fee.
func (h *Handler) GetShippingFee(w http.ResponseWriter, r *http.Request) {
	fee, err := h.settings.ShippingFee(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"shipping_fee": fee.StringFixed(2)})
}

func validateAddress(a order.Address) error {
	switch {
	case a.FullName == "":
		return errors.New("shipping address: full name is required")
	case a.Street1 == "":
		return errors.New("shipping address: street is required")
	case a.City == "":
		return errors.New("shipping address: city is required")
	case a.Country == "":
		return errors.New("shipping address: country is required")
	}
	return nil
}
