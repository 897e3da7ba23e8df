package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/int-market-project/international-market/internal/domain/checkout"
)

const (
	shippingFeeKey = "shipping_fee"

	getSettingSQL = `SELECT value FROM settings WHERE key = $1`

	upsertSettingSQL = `INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
)

var _ checkout.Settings = (*SettingsRepository)(nil)

// SettingsRepository stores operator settings as key/value text rows.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// ShippingFee returns the configured flat shipping fee. The row is seeded by
// the schema, so a missing row is a storage error, not a default case.
func (r *SettingsRepository) ShippingFee(ctx context.Context) (decimal.Decimal, error) {
	var raw string
	if err := r.pool.QueryRow(ctx, getSettingSQL, shippingFeeKey).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("reading shipping fee setting: %w", err)
	}
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing shipping fee setting %q: %w", raw, err)
	}
	return fee, nil
}

// SetShippingFee stores a new flat shipping fee.
func (r *SettingsRepository) SetShippingFee(ctx context.Context, fee decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, upsertSettingSQL, shippingFeeKey, fee.StringFixed(2)); err != nil {
		return fmt.Errorf("storing shipping fee setting: %w", err)
	}
	return nil
}
