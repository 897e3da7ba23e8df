// Package events publishes order lifecycle events to Kafka for downstream
// consumers (analytics, fulfillment dashboards).
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/int-market-project/international-market/internal/domain/order"
)

const publishTimeout = 5 * time.Second

// OrderPlacedEvent is emitted once per materialized order.
type OrderPlacedEvent struct {
	Type          string       `json:"type"`
	OrderID       int64        `json:"order_id"`
	CustomerID    int64        `json:"customer_id"`
	Items         []order.Item `json:"items"`
	Total         string       `json:"total"`
	CouponCode    string       `json:"coupon_code,omitempty"`
	PaymentMethod string       `json:"payment_method"`
	OrderedAt     time.Time    `json:"ordered_at"`
}

// OrderStatusChangedEvent is emitted on every successful status transition.
type OrderStatusChangedEvent struct {
	Type       string    `json:"type"`
	OrderID    int64     `json:"order_id"`
	CustomerID int64     `json:"customer_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ChangedAt  time.Time `json:"changed_at"`
}

var _ order.Events = (*KafkaBus)(nil)

// KafkaBus publishes order events to a single Kafka topic, keyed by order id
// so all events of one order land in the same partition, in order.
type KafkaBus struct {
	writer *kafka.Writer
}

// NewKafkaBus creates a KafkaBus writing to topic on the given brokers.
func NewKafkaBus(brokers []string, topic string) *KafkaBus {
	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// OrderPlaced publishes an order placement event.
func (b *KafkaBus) OrderPlaced(ctx context.Context, o *order.Order) error {
	return b.publish(ctx, o.ID, OrderPlacedEvent{
		Type:          "order.placed",
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		Items:         o.Items,
		Total:         o.Pricing.Total.StringFixed(2),
		CouponCode:    o.CouponCode,
		PaymentMethod: string(o.PaymentMethod),
		OrderedAt:     o.OrderedAt,
	})
}

// StatusChanged publishes a status transition event.
func (b *KafkaBus) StatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	changedAt := o.OrderedAt
	switch o.Status {
	case order.StatusConfirmed:
		changedAt = deref(o.ConfirmedAt, changedAt)
	case order.StatusPacked:
		changedAt = deref(o.PackedAt, changedAt)
	case order.StatusOutForDelivery:
		changedAt = deref(o.OutForDeliveryAt, changedAt)
	case order.StatusDelivered:
		changedAt = deref(o.DeliveredAt, changedAt)
	case order.StatusCanceled:
		changedAt = deref(o.CanceledAt, changedAt)
	}
	return b.publish(ctx, o.ID, OrderStatusChangedEvent{
		Type:       "order.status_changed",
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		From:       string(from),
		To:         string(o.Status),
		ChangedAt:  changedAt,
	})
}

func (b *KafkaBus) publish(ctx context.Context, orderID int64, event any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(orderID, 10)),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (b *KafkaBus) Close() error {
	return b.writer.Close()
}

func deref(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}
