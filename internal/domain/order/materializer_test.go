package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMaterializer(orders Repository, events Events) *Materializer {
	m := NewMaterializer(orders, events)
	m.now = func() time.Time { return machineNow }
	return m
}

func materializeFixture() MaterializeInput {
	return MaterializeInput{
		CustomerID:    7,
		Items:         []Item{{ProductID: 1, Quantity: 2}, {ProductID: 5, Quantity: 1}},
		Pricing:       pricingFixture(),
		CouponCode:    "SAVE10",
		PaymentMethod: PaymentCOD,
		ShippingAddress: Address{
			FullName: "Ada Lovelace",
			Street1:  "12 Analytical Row",
			City:     "London",
			Country:  "GB",
		},
		Notes: "leave at the door",
	}
}

func TestMaterializeCreatesPendingOrder(t *testing.T) {
	repo := newMockOrderRepo()
	m := fixedMaterializer(repo, nil)

	o, err := m.Materialize(context.Background(), materializeFixture())

	require.NoError(t, err)
	assert.Equal(t, int64(101), o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(7), o.CustomerID)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.Equal(t, PaymentCOD, o.PaymentMethod)
	assert.Equal(t, machineNow, o.OrderedAt)
	assert.Nil(t, o.ConfirmedAt)
	assert.Nil(t, o.DeliveredAt)
	assert.True(t, o.Pricing.Total.Equal(pricingFixture().Total))

	stored, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Items, stored.Items)
	assert.Equal(t, "leave at the door", stored.Notes)
}

func TestMaterializeAllocatesDistinctIDs(t *testing.T) {
	repo := newMockOrderRepo()
	m := fixedMaterializer(repo, nil)

	first, err := m.Materialize(context.Background(), materializeFixture())
	require.NoError(t, err)
	second, err := m.Materialize(context.Background(), materializeFixture())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.ID, first.ID)
}

func TestMaterializeCreateFailure(t *testing.T) {
	repo := newMockOrderRepo()
	repo.createErr = errors.New("connection reset")
	m := fixedMaterializer(repo, nil)

	_, err := m.Materialize(context.Background(), materializeFixture())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

// recordingEvents captures published orders for assertions.
type recordingEvents struct {
	placed  []int64
	changed []int64
	err     error
}

func (e *recordingEvents) OrderPlaced(_ context.Context, o *Order) error {
	if e.err != nil {
		return e.err
	}
	e.placed = append(e.placed, o.ID)
	return nil
}

func (e *recordingEvents) StatusChanged(_ context.Context, o *Order, _ Status) error {
	if e.err != nil {
		return e.err
	}
	e.changed = append(e.changed, o.ID)
	return nil
}

func TestMaterializePublishesOrderPlaced(t *testing.T) {
	events := &recordingEvents{}
	m := fixedMaterializer(newMockOrderRepo(), events)

	o, err := m.Materialize(context.Background(), materializeFixture())

	require.NoError(t, err)
	assert.Equal(t, []int64{o.ID}, events.placed)
}

func TestMaterializePublishFailureIsNonFatal(t *testing.T) {
	events := &recordingEvents{err: errors.New("broker down")}
	repo := newMockOrderRepo()
	m := fixedMaterializer(repo, events)

	o, err := m.Materialize(context.Background(), materializeFixture())

	require.NoError(t, err)
	_, err = repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
}

func TestStateMachinePublishesStatusChanged(t *testing.T) {
	events := &recordingEvents{}
	repo := newMockOrderRepo(&Order{ID: 1, Status: StatusPending})
	sm := NewStateMachine(repo, nil, events)
	sm.now = func() time.Time { return machineNow }

	_, err := sm.Transition(context.Background(), 1, StatusConfirmed, "")

	require.NoError(t, err)
	assert.Equal(t, []int64{1}, events.changed)
}
