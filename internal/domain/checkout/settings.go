package checkout

import (
	"context"

	"github.com/shopspring/decimal"
)

// Settings exposes the operator-tunable checkout parameters. Today that is
// only the flat shipping fee; it is read at draft build time so in-flight
// drafts keep the fee they were quoted.
type Settings interface {
	ShippingFee(ctx context.Context) (decimal.Decimal, error)
	SetShippingFee(ctx context.Context, fee decimal.Decimal) error
}
