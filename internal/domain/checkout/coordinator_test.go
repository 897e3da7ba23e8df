package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/int-market-project/international-market/internal/domain/coupon"
	"github.com/int-market-project/international-market/internal/domain/order"
	"github.com/int-market-project/international-market/internal/domain/payment"
)

// stubDrafts is an in-memory DraftRepository keyed by customer id.
type stubDrafts struct {
	drafts map[int64]*Draft
}

func newStubDrafts(drafts ...*Draft) *stubDrafts {
	s := &stubDrafts{drafts: make(map[int64]*Draft)}
	for _, d := range drafts {
		s.drafts[d.CustomerID] = d
	}
	return s
}

func (s *stubDrafts) Upsert(_ context.Context, d *Draft) error {
	cp := *d
	s.drafts[d.CustomerID] = &cp
	return nil
}

func (s *stubDrafts) Get(_ context.Context, customerID int64) (*Draft, error) {
	d, ok := s.drafts[customerID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *stubDrafts) Delete(_ context.Context, customerID int64) error {
	delete(s.drafts, customerID)
	return nil
}

// stubCouponRepo backs a real coupon.Engine; only Redeem matters here.
type stubCouponRepo struct {
	redeemed  []string
	redeemErr error
}

func (s *stubCouponRepo) FindByCode(context.Context, string) (*coupon.Coupon, error) {
	return nil, coupon.ErrNotFound
}

func (s *stubCouponRepo) Redeem(_ context.Context, code string, _ int64) error {
	if s.redeemErr != nil {
		return s.redeemErr
	}
	s.redeemed = append(s.redeemed, code)
	return nil
}

func (s *stubCouponRepo) Create(context.Context, *coupon.Coupon) error { return nil }
func (s *stubCouponRepo) Update(context.Context, *coupon.Coupon) error { return nil }
func (s *stubCouponRepo) Delete(context.Context, string) error         { return nil }
func (s *stubCouponRepo) List(context.Context) ([]coupon.Coupon, error) {
	return nil, nil
}

// stubOrders implements order.Repository for coordinator tests.
type stubOrders struct {
	nextID    int64
	created   []*order.Order
	attached  map[int64]string
	createErr error
}

func newStubOrders() *stubOrders {
	return &stubOrders{nextID: 500, attached: make(map[int64]string)}
}

func (s *stubOrders) NextID(context.Context) (int64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *stubOrders) Create(_ context.Context, o *order.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	cp := *o
	s.created = append(s.created, &cp)
	return nil
}

func (s *stubOrders) GetByID(context.Context, int64) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (s *stubOrders) GetForCustomer(context.Context, int64, int64) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (s *stubOrders) LatestIDForCustomer(context.Context, int64) (int64, error) {
	return 0, order.ErrNotFound
}

func (s *stubOrders) AttachTransaction(_ context.Context, orderID int64, transactionID string) error {
	s.attached[orderID] = transactionID
	return nil
}

func (s *stubOrders) ApplyTransition(context.Context, *order.Order) error { return nil }

func (s *stubOrders) ListOpen(context.Context) ([]order.Order, error) { return nil, nil }

// stubTxs implements payment.Repository.
type stubTxs struct {
	created   []*payment.Transaction
	existing  *payment.Transaction
	findErr   error
	createErr error
	failed    []string
	attached  map[string]int64
}

func newStubTxs() *stubTxs {
	return &stubTxs{attached: make(map[string]int64)}
}

func (s *stubTxs) Create(_ context.Context, t *payment.Transaction) error {
	if s.createErr != nil {
		return s.createErr
	}
	cp := *t
	s.created = append(s.created, &cp)
	return nil
}

func (s *stubTxs) FindByPaymentIntent(context.Context, string, string) (*payment.Transaction, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.existing != nil {
		return s.existing, nil
	}
	return nil, payment.ErrNotFound
}

func (s *stubTxs) AttachOrder(_ context.Context, transactionID string, orderID int64) error {
	s.attached[transactionID] = orderID
	return nil
}

func (s *stubTxs) MarkSucceeded(context.Context, string) error { return nil }

func (s *stubTxs) MarkFailed(_ context.Context, transactionID string) error {
	s.failed = append(s.failed, transactionID)
	return nil
}

func (s *stubTxs) ListRecent(context.Context, int) ([]payment.Transaction, error) {
	return nil, nil
}

func (s *stubTxs) ListByCustomer(context.Context, int64, int) ([]payment.Transaction, error) {
	return nil, nil
}

type stubCarts struct {
	emptied []int64
}

func (s *stubCarts) Empty(_ context.Context, customerID int64) error {
	s.emptied = append(s.emptied, customerID)
	return nil
}

type stubProvider struct {
	sessions []payment.SessionRequest
	url      string
}

func (s *stubProvider) Name() string { return "stripe" }

func (s *stubProvider) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	s.sessions = append(s.sessions, req)
	return &payment.Session{ID: "cs_test_1", URL: s.url}, nil
}

func (s *stubProvider) ParseEvent([]byte, string) (*payment.CompletedPayment, error) {
	return nil, nil
}

type coordinatorFixture struct {
	c        *Coordinator
	drafts   *stubDrafts
	coupons  *stubCouponRepo
	orders   *stubOrders
	txs      *stubTxs
	carts    *stubCarts
	provider *stubProvider
}

func newCoordinatorFixture(provider payment.Provider, drafts ...*Draft) *coordinatorFixture {
	f := &coordinatorFixture{
		drafts:  newStubDrafts(drafts...),
		coupons: &stubCouponRepo{},
		orders:  newStubOrders(),
		txs:     newStubTxs(),
		carts:   &stubCarts{},
	}
	if sp, ok := provider.(*stubProvider); ok {
		f.provider = sp
	}
	f.c = NewCoordinator(
		CoordinatorConfig{SuccessURL: "https://shop.test/thanks", CancelURL: "https://shop.test/cart"},
		f.drafts,
		coupon.NewEngine(f.coupons),
		order.NewMaterializer(f.orders, nil),
		f.orders,
		f.txs,
		f.carts,
		provider,
	)
	f.c.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return f
}

func testAddress() order.Address {
	return order.Address{
		FullName: "Grace Hopper",
		Street1:  "1 Compiler Way",
		City:     "Arlington",
		Country:  "US",
	}
}

func testDraft(customerID int64, couponCode string) *Draft {
	return &Draft{
		CustomerID: customerID,
		Items:      []order.Item{{ProductID: 3, Quantity: 2}},
		Totals: Totals{
			Subtotal:           d("100"),
			DiscountAmount:     d("10"),
			DiscountedSubtotal: d("90"),
			Tax:                d("5.40"),
			ShippingFee:        d("4.95"),
			Total:              d("100.35"),
		},
		CouponCode: couponCode,
	}
}

func TestPlaceCODOrder(t *testing.T) {
	f := newCoordinatorFixture(nil, testDraft(7, "SAVE10"))

	orderID, err := f.c.PlaceCODOrder(context.Background(), 7, testAddress(), "ring twice")

	require.NoError(t, err)
	assert.Equal(t, int64(501), orderID)

	assert.Equal(t, []string{"SAVE10"}, f.coupons.redeemed)

	require.Len(t, f.orders.created, 1)
	o := f.orders.created[0]
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentCOD, o.PaymentMethod)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.Equal(t, "ring twice", o.Notes)
	assert.Equal(t, testAddress(), o.ShippingAddress)
	assert.True(t, o.Pricing.Total.Equal(d("100.35")))

	require.Len(t, f.txs.created, 1)
	tx := f.txs.created[0]
	assert.Equal(t, orderID, tx.OrderID)
	assert.Equal(t, payment.StatusPending, tx.Status)
	assert.Equal(t, order.PaymentCOD, tx.PaymentMethod)
	assert.True(t, tx.Amount.Equal(d("100.35")))
	assert.Empty(t, tx.Provider)
	assert.Equal(t, tx.ID, f.orders.attached[orderID])

	assert.Equal(t, []int64{7}, f.carts.emptied)
	_, err = f.drafts.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestPlaceCODOrderWithoutCoupon(t *testing.T) {
	f := newCoordinatorFixture(nil, testDraft(7, ""))

	_, err := f.c.PlaceCODOrder(context.Background(), 7, testAddress(), "")

	require.NoError(t, err)
	assert.Empty(t, f.coupons.redeemed)
}

func TestPlaceCODOrderRedeemFailureAborts(t *testing.T) {
	f := newCoordinatorFixture(nil, testDraft(7, "SAVE10"))
	f.coupons.redeemErr = coupon.ErrAlreadyUsed

	_, err := f.c.PlaceCODOrder(context.Background(), 7, testAddress(), "")

	require.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	assert.Empty(t, f.orders.created)
	assert.Empty(t, f.txs.created)

	// Draft survives the abort.
	_, err = f.drafts.Get(context.Background(), 7)
	require.NoError(t, err)
}

func TestPlaceCODOrderNoDraft(t *testing.T) {
	f := newCoordinatorFixture(nil)

	_, err := f.c.PlaceCODOrder(context.Background(), 7, testAddress(), "")

	require.ErrorIs(t, err, ErrDraftNotFound)
}

func TestPlaceCODOrderMaterializeFailureKeepsDraft(t *testing.T) {
	f := newCoordinatorFixture(nil, testDraft(7, ""))
	f.orders.createErr = errors.New("insert failed")

	_, err := f.c.PlaceCODOrder(context.Background(), 7, testAddress(), "")

	require.Error(t, err)
	assert.Empty(t, f.carts.emptied)
	_, err = f.drafts.Get(context.Background(), 7)
	require.NoError(t, err)
}

func TestStartOnlinePaymentDisabled(t *testing.T) {
	f := newCoordinatorFixture(nil, testDraft(7, ""))

	_, err := f.c.StartOnlinePayment(context.Background(), 7, testAddress(), "")

	require.ErrorIs(t, err, ErrOnlinePaymentsDisabled)
}

func TestStartOnlinePayment(t *testing.T) {
	provider := &stubProvider{url: "https://pay.test/session/cs_test_1"}
	f := newCoordinatorFixture(provider, testDraft(7, "SAVE10"))

	url, err := f.c.StartOnlinePayment(context.Background(), 7, testAddress(), "fragile")

	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/session/cs_test_1", url)

	// Address and notes are parked on the draft for the completion callback.
	saved, err := f.drafts.Get(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, saved.ShippingAddress)
	assert.Equal(t, testAddress(), *saved.ShippingAddress)
	assert.Equal(t, "fragile", saved.Notes)

	require.Len(t, provider.sessions, 1)
	req := provider.sessions[0]
	assert.Equal(t, int64(7), req.CustomerID)
	assert.True(t, req.Amount.Equal(d("100.35")))
	assert.Equal(t, "https://shop.test/thanks", req.SuccessURL)
	assert.Equal(t, "https://shop.test/cart", req.CancelURL)

	// No order and no transaction until the provider confirms payment.
	assert.Empty(t, f.orders.created)
	assert.Empty(t, f.txs.created)
}

func completedEvent() payment.CompletedPayment {
	return payment.CompletedPayment{
		Provider:        "stripe",
		PaymentIntentID: "pi_123",
		CustomerID:      7,
	}
}

func onlineDraft(customerID int64, couponCode string) *Draft {
	d := testDraft(customerID, couponCode)
	addr := testAddress()
	d.ShippingAddress = &addr
	d.Notes = "fragile"
	return d
}

func TestCompleteOnlinePayment(t *testing.T) {
	f := newCoordinatorFixture(nil, onlineDraft(7, "SAVE10"))

	err := f.c.CompleteOnlinePayment(context.Background(), completedEvent())

	require.NoError(t, err)

	require.Len(t, f.txs.created, 1)
	tx := f.txs.created[0]
	assert.Equal(t, payment.StatusSucceeded, tx.Status)
	assert.Equal(t, order.PaymentOnline, tx.PaymentMethod)
	assert.Equal(t, "stripe", tx.Provider)
	assert.Equal(t, "pi_123", tx.ProviderPaymentIntentID)
	assert.True(t, tx.Amount.Equal(d("100.35")))

	assert.Equal(t, []string{"SAVE10"}, f.coupons.redeemed)

	require.Len(t, f.orders.created, 1)
	o := f.orders.created[0]
	assert.Equal(t, order.PaymentOnline, o.PaymentMethod)
	assert.Equal(t, testAddress(), o.ShippingAddress)
	assert.Equal(t, "fragile", o.Notes)

	assert.Equal(t, o.ID, f.txs.attached[tx.ID])
	assert.Equal(t, tx.ID, f.orders.attached[o.ID])

	assert.Equal(t, []int64{7}, f.carts.emptied)
	_, err = f.drafts.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestCompleteOnlinePaymentIgnoresIncompleteEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   payment.CompletedPayment
	}{
		{"no payment intent", payment.CompletedPayment{Provider: "stripe", CustomerID: 7}},
		{"no customer", payment.CompletedPayment{Provider: "stripe", PaymentIntentID: "pi_123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(nil, onlineDraft(7, ""))

			err := f.c.CompleteOnlinePayment(context.Background(), tt.ev)

			require.NoError(t, err)
			assert.Empty(t, f.orders.created)
			assert.Empty(t, f.txs.created)
		})
	}
}

func TestCompleteOnlinePaymentReplay(t *testing.T) {
	f := newCoordinatorFixture(nil, onlineDraft(7, ""))
	f.txs.existing = &payment.Transaction{ID: "tx-seen", ProviderPaymentIntentID: "pi_123"}

	err := f.c.CompleteOnlinePayment(context.Background(), completedEvent())

	require.NoError(t, err)
	assert.Empty(t, f.orders.created)
	assert.Empty(t, f.txs.created)
}

func TestCompleteOnlinePaymentNoDraft(t *testing.T) {
	f := newCoordinatorFixture(nil)

	err := f.c.CompleteOnlinePayment(context.Background(), completedEvent())

	require.NoError(t, err)
	assert.Empty(t, f.orders.created)
}

func TestCompleteOnlinePaymentMissingAddress(t *testing.T) {
	f := newCoordinatorFixture(nil, testDraft(7, ""))

	err := f.c.CompleteOnlinePayment(context.Background(), completedEvent())

	require.NoError(t, err)
	assert.Empty(t, f.orders.created)
	assert.Empty(t, f.txs.created)
}

func TestCompleteOnlinePaymentDuplicateIntentRace(t *testing.T) {
	f := newCoordinatorFixture(nil, onlineDraft(7, ""))
	f.txs.createErr = payment.ErrDuplicateIntent

	err := f.c.CompleteOnlinePayment(context.Background(), completedEvent())

	require.NoError(t, err)
	assert.Empty(t, f.orders.created)
}

func TestCompleteOnlinePaymentRedeemFailureIsNonFatal(t *testing.T) {
	f := newCoordinatorFixture(nil, onlineDraft(7, "SAVE10"))
	f.coupons.redeemErr = coupon.ErrUsageLimitReached

	err := f.c.CompleteOnlinePayment(context.Background(), completedEvent())

	require.NoError(t, err)
	require.Len(t, f.orders.created, 1)
	assert.Equal(t, "SAVE10", f.orders.created[0].CouponCode)
}

func TestCompleteOnlinePaymentMaterializeFailure(t *testing.T) {
	f := newCoordinatorFixture(nil, onlineDraft(7, ""))
	f.orders.createErr = errors.New("insert failed")

	err := f.c.CompleteOnlinePayment(context.Background(), completedEvent())

	require.Error(t, err)
	require.Len(t, f.txs.created, 1)
	assert.Equal(t, []string{f.txs.created[0].ID}, f.txs.failed)

	// Draft stays so a manual retry can still materialize.
	_, err = f.drafts.Get(context.Background(), 7)
	require.NoError(t, err)
}
