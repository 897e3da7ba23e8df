package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOrderRepo is an in-memory Repository for state machine and
// materializer tests.
type mockOrderRepo struct {
	nextID    int64
	orders    map[int64]*Order
	createErr error
	applyErr  error
}

func newMockOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{nextID: 100, orders: make(map[int64]*Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) NextID(context.Context) (int64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetForCustomer(ctx context.Context, id, customerID int64) (*Order, error) {
	o, err := m.GetByID(ctx, id)
	if err != nil || o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) LatestIDForCustomer(_ context.Context, customerID int64) (int64, error) {
	var latest int64
	for id, o := range m.orders {
		if o.CustomerID == customerID && id > latest {
			latest = id
		}
	}
	if latest == 0 {
		return 0, ErrNotFound
	}
	return latest, nil
}

func (m *mockOrderRepo) AttachTransaction(_ context.Context, orderID int64, transactionID string) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.TransactionID = transactionID
	return nil
}

func (m *mockOrderRepo) ApplyTransition(_ context.Context, o *Order) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	if _, ok := m.orders[o.ID]; !ok {
		return ErrNotFound
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) ListOpen(context.Context) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out, nil
}

// mockMarker records MarkSucceeded calls.
type mockMarker struct {
	marked []string
	err    error
}

func (m *mockMarker) MarkSucceeded(_ context.Context, transactionID string) error {
	if m.err != nil {
		return m.err
	}
	m.marked = append(m.marked, transactionID)
	return nil
}

var machineNow = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

func fixedStateMachine(orders Repository, txs TransactionMarker) *StateMachine {
	sm := NewStateMachine(orders, txs, nil)
	sm.now = func() time.Time { return machineNow }
	return sm
}

func TestStatusTransitionTable(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCanceled, true},
		{StatusPending, StatusPacked, false},
		{StatusPending, StatusDelivered, false},
		{StatusConfirmed, StatusPacked, true},
		{StatusConfirmed, StatusCanceled, false},
		{StatusPacked, StatusOutForDelivery, true},
		{StatusPacked, StatusDelivered, false},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusDelivered, StatusCanceled, false},
		{StatusDelivered, StatusPending, false},
		{StatusCanceled, StatusConfirmed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, Status("bogus").Valid())
}

func TestTransitionStampsSingleTimestamp(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: 1, Status: StatusPending})
	sm := fixedStateMachine(repo, nil)

	o, err := sm.Transition(context.Background(), 1, StatusConfirmed, "")

	require.NoError(t, err)
	require.NotNil(t, o.ConfirmedAt)
	assert.Equal(t, machineNow, *o.ConfirmedAt)
	assert.Nil(t, o.PackedAt)
	assert.Nil(t, o.OutForDeliveryAt)
	assert.Nil(t, o.DeliveredAt)
	assert.Nil(t, o.CanceledAt)
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: 1, Status: StatusPending})
	sm := fixedStateMachine(repo, nil)

	_, err := sm.Transition(context.Background(), 1, StatusDelivered, "")

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusPending, itErr.From)
	assert.Equal(t, StatusDelivered, itErr.To)
	assert.Equal(t, "invalid transition: pending -> delivered", itErr.Error())

	// Nothing persisted.
	stored, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestTransitionTerminalStatesAreClosed(t *testing.T) {
	for _, terminal := range []Status{StatusDelivered, StatusCanceled} {
		repo := newMockOrderRepo(&Order{ID: 1, Status: terminal})
		sm := fixedStateMachine(repo, nil)

		for _, next := range []Status{StatusPending, StatusConfirmed, StatusPacked, StatusOutForDelivery, StatusDelivered, StatusCanceled} {
			_, err := sm.Transition(context.Background(), 1, next, "")

			var itErr *InvalidTransitionError
			assert.ErrorAs(t, err, &itErr, "%s -> %s should be rejected", terminal, next)
		}
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: 1, Status: StatusPending})
	sm := fixedStateMachine(repo, nil)

	_, err := sm.Transition(context.Background(), 1, Status("shipped"), "")

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
}

func TestTransitionAppendsNotes(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: 1, Status: StatusPending, Notes: "gift wrap please"})
	sm := fixedStateMachine(repo, nil)

	o, err := sm.Transition(context.Background(), 1, StatusConfirmed, "called the customer")

	require.NoError(t, err)
	assert.Equal(t,
		"gift wrap please\n\n[ADMIN CONFIRMED @ 2025-06-15 09:30 UTC]\ncalled the customer",
		o.Notes,
	)

	// A transition without a message leaves notes untouched.
	o2, err := sm.Transition(context.Background(), 1, StatusPacked, "   ")
	require.NoError(t, err)
	assert.Equal(t, o.Notes, o2.Notes)
}

func TestTransitionNoteOnEmptyNotes(t *testing.T) {
	repo := newMockOrderRepo(&Order{ID: 1, Status: StatusPending})
	sm := fixedStateMachine(repo, nil)

	o, err := sm.Transition(context.Background(), 1, StatusCanceled, "out of stock")

	require.NoError(t, err)
	assert.Equal(t, "[ADMIN CANCELED @ 2025-06-15 09:30 UTC]\nout of stock", o.Notes)
}

func TestTransitionDeliveredMarksCODTransaction(t *testing.T) {
	repo := newMockOrderRepo(&Order{
		ID:            1,
		Status:        StatusOutForDelivery,
		PaymentMethod: PaymentCOD,
		TransactionID: "tx-1",
	})
	marker := &mockMarker{}
	sm := fixedStateMachine(repo, marker)

	_, err := sm.Transition(context.Background(), 1, StatusDelivered, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"tx-1"}, marker.marked)
}

func TestTransitionDeliveredSkipsOnlineTransaction(t *testing.T) {
	repo := newMockOrderRepo(&Order{
		ID:            1,
		Status:        StatusOutForDelivery,
		PaymentMethod: PaymentOnline,
		TransactionID: "tx-1",
	})
	marker := &mockMarker{}
	sm := fixedStateMachine(repo, marker)

	_, err := sm.Transition(context.Background(), 1, StatusDelivered, "")

	require.NoError(t, err)
	assert.Empty(t, marker.marked)
}

func TestTransitionReconciliationFailureIsSwallowed(t *testing.T) {
	repo := newMockOrderRepo(&Order{
		ID:            1,
		Status:        StatusOutForDelivery,
		PaymentMethod: PaymentCOD,
		TransactionID: "tx-1",
	})
	marker := &mockMarker{err: errors.New("boom")}
	sm := fixedStateMachine(repo, marker)

	o, err := sm.Transition(context.Background(), 1, StatusDelivered, "")

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, o.Status)
}

func TestTransitionUnknownOrder(t *testing.T) {
	sm := fixedStateMachine(newMockOrderRepo(), nil)

	_, err := sm.Transition(context.Background(), 42, StatusConfirmed, "")

	require.ErrorIs(t, err, ErrNotFound)
}

// pricingFixture is reused by materializer tests.
func pricingFixture() Pricing {
	return Pricing{
		Subtotal:           decimal.RequireFromString("100"),
		DiscountAmount:     decimal.RequireFromString("10"),
		DiscountedSubtotal: decimal.RequireFromString("90"),
		Tax:                decimal.RequireFromString("5.40"),
		ShippingFee:        decimal.RequireFromString("4.95"),
		Total:              decimal.RequireFromString("100.35"),
	}
}
