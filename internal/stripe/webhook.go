package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/int-market-project/international-market/internal/domain/payment"
)

// eventCheckoutCompleted is the only event type the core reacts to; every
// other authentic event is acknowledged and ignored.
const eventCheckoutCompleted = "checkout.session.completed"

// ParseEvent verifies the Stripe-Signature header against the webhook signing
// secret and extracts the completed payment from a checkout.session.completed
// event. Signature failures return payment.ErrBadSignature; any other event
// type yields (nil, nil) so the caller acknowledges without acting.
func (c *Client) ParseEvent(payload []byte, signatureHeader string) (*payment.CompletedPayment, error) {
	if err := c.verifySignature(payload, signatureHeader); err != nil {
		return nil, err
	}

	ev, err := parseEventPayload(payload)
	if err != nil {
		return nil, errors.Wrap(err, "parse event")
	}
	if ev.typ != eventCheckoutCompleted {
		return nil, nil
	}

	customerID, _ := strconv.ParseInt(ev.customerID, 10, 64)
	return &payment.CompletedPayment{
		Provider:        providerName,
		PaymentIntentID: ev.paymentIntent,
		CustomerID:      customerID,
	}, nil
}

// verifySignature checks the v1 HMAC-SHA256 signatures in the header, scheme
// "t=<unix>,v1=<hex>": the signed payload is "<t>.<body>". The timestamp must
// be within signatureTolerance of now.
func (c *Client) verifySignature(payload []byte, header string) error {
	if c.webhookSecret == "" {
		return errors.Wrap(payment.ErrBadSignature, "webhook secret not configured")
	}

	var (
		timestamp  string
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			if sig, err := hex.DecodeString(v); err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return payment.ErrBadSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return payment.ErrBadSignature
	}
	age := c.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return errors.Wrap(payment.ErrBadSignature, "timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return payment.ErrBadSignature
}

type eventPayload struct {
	typ           string
	paymentIntent string
	customerID    string
}

// parseEventPayload walks the event JSON tolerantly, pulling the event type,
// the payment intent and the customer id out of the session object while
// skipping everything else Stripe includes.
func parseEventPayload(payload []byte) (eventPayload, error) {
	var ev eventPayload
	d := jx.DecodeBytes(payload)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			v, err := d.Str()
			ev.typ = v
			return err
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "object" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "payment_intent":
						if d.Next() == jx.Null {
							return d.Null()
						}
						v, err := d.Str()
						ev.paymentIntent = v
						return err
					case "metadata":
						if d.Next() == jx.Null {
							return d.Null()
						}
						return d.Obj(func(d *jx.Decoder, key string) error {
							if key != "customer_id" {
								return d.Skip()
							}
							v, err := d.Str()
							ev.customerID = v
							return err
						})
					default:
						return d.Skip()
					}
				})
			})
		default:
			return d.Skip()
		}
	})
	return ev, err
}
