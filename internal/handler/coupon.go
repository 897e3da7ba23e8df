package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/int-market-project/international-market/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code        string          `json:"code"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
}

type validateCouponResponse struct {
	OK       bool             `json:"ok"`
	Message  string           `json:"message,omitempty"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
	Totals   *checkoutTotals  `json:"totals,omitempty"`
	Coupon   *coupon.Summary  `json:"coupon,omitempty"`
}

type checkoutTotals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	DiscountedSubtotal decimal.Decimal `json:"discounted_subtotal"`
	Tax                decimal.Decimal `json:"tax"`
	ShippingFee        decimal.Decimal `json:"shipping_fee"`
	Total              decimal.Decimal `json:"total"`
}

// ValidateCoupon previews a coupon against the customer's cart subtotal
// without redeeming it. Rejections are part of the normal response so the
// cart UI can show the reason inline.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.engine.Validate(r.Context(), req.Code, customerID(r), req.Subtotal)
	if err != nil {
		if coupon.UserFacing(err) {
			writeJSON(w, r, http.StatusOK, validateCouponResponse{OK: false, Message: err.Error()})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	t := h.calc.Compute(req.Subtotal, v.DiscountAmount, req.ShippingFee)
	writeJSON(w, r, http.StatusOK, validateCouponResponse{
		OK:       true,
		Discount: &v.DiscountAmount,
		Totals: &checkoutTotals{
			Subtotal:           t.Subtotal,
			DiscountAmount:     t.DiscountAmount,
			DiscountedSubtotal: t.DiscountedSubtotal,
			Tax:                t.Tax,
			ShippingFee:        t.ShippingFee,
			Total:              t.Total,
		},
		Coupon: &v.Summary,
	})
}

type couponPayload struct {
	Code                string          `json:"code"`
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	DiscountType        string          `json:"discount_type"`
	DiscountValue       decimal.Decimal `json:"discount_value"`
	MinOrderSubtotal    decimal.Decimal `json:"min_order_subtotal"`
	Audience            string          `json:"audience"`
	EligibleCustomerIDs []int64         `json:"eligible_customer_ids"`
	MaxUsesTotal        int             `json:"max_uses_total"`
	UsesTotal           int             `json:"uses_total,omitempty"`
	StartsAt            *time.Time      `json:"starts_at,omitempty"`
	EndsAt              *time.Time      `json:"ends_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at,omitempty"`
}

func couponToPayload(c *coupon.Coupon) couponPayload {
	return couponPayload{
		Code:                c.Code,
		Title:               c.Title,
		Description:         c.Description,
		DiscountType:        string(c.DiscountType),
		DiscountValue:       c.DiscountValue,
		MinOrderSubtotal:    c.MinOrderSubtotal,
		Audience:            string(c.Audience),
		EligibleCustomerIDs: c.EligibleCustomerIDs,
		MaxUsesTotal:        c.MaxUsesTotal,
		UsesTotal:           c.UsesTotal,
		StartsAt:            c.StartsAt,
		EndsAt:              c.EndsAt,
		CreatedAt:           c.CreatedAt,
	}
}

// payloadToCoupon validates the admin payload and builds the domain entity.
func payloadToCoupon(p couponPayload) (*coupon.Coupon, error) {
	code := coupon.NormalizeCode(p.Code)
	if code == "" {
		return nil, errors.New("code is required")
	}
	if p.Title == "" {
		return nil, errors.New("title is required")
	}

	dt := coupon.DiscountType(p.DiscountType)
	if dt != coupon.DiscountAmount && dt != coupon.DiscountPercent {
		return nil, errors.New("discount_type must be amount or percent")
	}
	if !p.DiscountValue.IsPositive() {
		return nil, errors.New("discount_value must be positive")
	}
	if dt == coupon.DiscountPercent && p.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.New("percent discount cannot exceed 100")
	}
	if p.MinOrderSubtotal.IsNegative() {
		return nil, errors.New("min_order_subtotal cannot be negative")
	}
	if p.MaxUsesTotal < 0 {
		return nil, errors.New("max_uses_total cannot be negative")
	}

	audience := coupon.Audience(p.Audience)
	if audience == "" {
		audience = coupon.AudienceAll
	}
	if audience != coupon.AudienceAll && audience != coupon.AudienceCustomers {
		return nil, errors.New("audience must be all or customers")
	}
	if audience == coupon.AudienceCustomers && len(p.EligibleCustomerIDs) == 0 {
		return nil, errors.New("eligible_customer_ids is required for a customers audience")
	}

	if p.StartsAt != nil && p.EndsAt != nil && !p.StartsAt.Before(*p.EndsAt) {
		return nil, errors.New("starts_at must be before ends_at")
	}

	return &coupon.Coupon{
		Code:                code,
		Title:               p.Title,
		Description:         p.Description,
		DiscountType:        dt,
		DiscountValue:       p.DiscountValue,
		MinOrderSubtotal:    p.MinOrderSubtotal,
		Audience:            audience,
		EligibleCustomerIDs: p.EligibleCustomerIDs,
		MaxUsesTotal:        p.MaxUsesTotal,
		StartsAt:            p.StartsAt,
		EndsAt:              p.EndsAt,
	}, nil
}

// AdminListCoupons returns every coupon, newest first.
func (h *Handler) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	out := make([]couponPayload, len(coupons))
	for i := range coupons {
		out[i] = couponToPayload(&coupons[i])
	}
	writeJSON(w, r, http.StatusOK, out)
}

// AdminCreateCoupon creates a new coupon from the admin payload.
func (h *Handler) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var p couponPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	c, err := payloadToCoupon(p)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c.CreatedAt = time.Now().UTC()

	if err := h.coupons.Create(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrCodeTaken) {
			writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, couponToPayload(c))
}

// AdminGetCoupon returns one coupon by code.
func (h *Handler) AdminGetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.FindByCode(r.Context(), coupon.NormalizeCode(chi.URLParam(r, "code")))
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "coupon not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, couponToPayload(c))
}

// AdminUpdateCoupon rewrites the rule fields of an existing coupon. Usage
// counters are immutable through this endpoint.
func (h *Handler) AdminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var p couponPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	p.Code = chi.URLParam(r, "code")
	c, err := payloadToCoupon(p)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.coupons.Update(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "coupon not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, couponToPayload(c))
}

// AdminDeleteCoupon removes a coupon by code.
func (h *Handler) AdminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	err := h.coupons.Delete(r.Context(), coupon.NormalizeCode(chi.URLParam(r, "code")))
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "coupon not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
