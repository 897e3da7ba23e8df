// Package handler exposes the storefront checkout API, the payment provider
// webhook and the admin surface over a chi router.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/int-market-project/international-market/internal/domain/auth"
	"github.com/int-market-project/international-market/internal/domain/checkout"
	"github.com/int-market-project/international-market/internal/domain/coupon"
	"github.com/int-market-project/international-market/internal/domain/customer"
	"github.com/int-market-project/international-market/internal/domain/order"
	"github.com/int-market-project/international-market/internal/domain/payment"
	"github.com/int-market-project/international-market/internal/notify"
)

// Handler carries every collaborator of the HTTP surface. All fields are
// required unless noted otherwise.
type Handler struct {
	builder     *checkout.Builder
	coordinator *checkout.Coordinator
	coupons     coupon.Repository
	engine      *coupon.Engine
	calc        checkout.Calculator
	settings    checkout.Settings
	orders      order.Repository
	states      *order.StateMachine
	txs         payment.Repository
	customers   customer.Repository

	// provider is nil when online payments are disabled; the webhook then
	// rejects every callback.
	provider payment.Provider
	// mailer is nil when SMTP is not configured; status emails are skipped.
	mailer *notify.Mailer

	security *SecurityHandler
}

// NewHandler constructs a Handler with the given collaborators.
func NewHandler(
	builder *checkout.Builder,
	coordinator *checkout.Coordinator,
	coupons coupon.Repository,
	engine *coupon.Engine,
	calc checkout.Calculator,
	settings checkout.Settings,
	orders order.Repository,
	states *order.StateMachine,
	txs payment.Repository,
	customers customer.Repository,
	provider payment.Provider,
	mailer *notify.Mailer,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		builder:     builder,
		coordinator: coordinator,
		coupons:     coupons,
		engine:      engine,
		calc:        calc,
		settings:    settings,
		orders:      orders,
		states:      states,
		txs:         txs,
		customers:   customers,
		provider:    provider,
		mailer:      mailer,
		security:    NewSecurityHandler(apikeys, pepper),
	}
}

// Routes builds the chi router for the whole API surface.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireCustomer)

		r.Post("/coupons/validate", h.ValidateCoupon)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/draft", h.BuildDraft)
			r.Get("/draft", h.GetDraft)
			r.Delete("/draft", h.DeleteDraft)
			r.Post("/place", h.PlaceOrder)
			r.Post("/payment-session", h.StartPaymentSession)
		})

		r.Get("/orders/latest", h.LatestOrder)
		r.Get("/orders/{orderID}", h.GetOrder)

		r.Get("/shipping-fee", h.GetShippingFee)
	})

	r.Post("/webhooks/payment", h.PaymentWebhook)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.security.RequireAPIKey)

		r.Get("/coupons", h.AdminListCoupons)
		r.Post("/coupons", h.AdminCreateCoupon)
		r.Get("/coupons/{code}", h.AdminGetCoupon)
		r.Put("/coupons/{code}", h.AdminUpdateCoupon)
		r.Delete("/coupons/{code}", h.AdminDeleteCoupon)

		r.Get("/orders/open", h.AdminOpenOrders)
		r.Get("/orders/{orderID}", h.AdminGetOrder)
		r.Post("/orders/{orderID}/status", h.AdminUpdateOrderStatus)

		r.Get("/transactions/recent", h.AdminRecentTransactions)
		r.Get("/customers/{customerID}/transactions", h.AdminCustomerTransactions)

		r.Get("/settings/shipping-fee", h.AdminGetShippingFee)
		r.Put("/settings/shipping-fee", h.AdminSetShippingFee)
	})

	return r
}
