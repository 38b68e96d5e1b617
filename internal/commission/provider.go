package commission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
)

// Provider returns the platform commission rate in effect right now.
// The value is read once per checkout and snapshotted on each deal.
type Provider interface {
	CurrentRate(ctx context.Context) (decimal.Decimal, error)
}

// StaticProvider serves a fixed rate from configuration.
type StaticProvider struct {
	rate decimal.Decimal
}

func NewStaticProvider(rate decimal.Decimal) *StaticProvider {
	return &StaticProvider{rate: rate}
}

func (p *StaticProvider) CurrentRate(context.Context) (decimal.Decimal, error) {
	return p.rate, nil
}

// TableProvider reads the most recent commission_rates row whose effective_at
// is not in the future, falling back to the configured rate when none exists.
type TableProvider struct {
	db       *gorm.DB
	fallback decimal.Decimal
	now      func() time.Time
}

func NewTableProvider(conn *gorm.DB, fallback decimal.Decimal) *TableProvider {
	return &TableProvider{db: conn, fallback: fallback, now: time.Now}
}

func (p *TableProvider) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	var row models.CommissionRate
	err := p.db.WithContext(ctx).
		Where("effective_at <= ?", p.now().UTC()).
		Order("effective_at DESC").
		First(&row).Error
	if err != nil {
		if db.IsNotFound(err) {
			return p.fallback, nil
		}
		return decimal.Zero, fmt.Errorf("load commission rate: %w", err)
	}
	if row.Rate.IsNegative() || row.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("commission rate %s out of range", row.Rate)
	}
	return row.Rate, nil
}

// NewProvider picks the provider named by DEALFLOW_COMMISSION_SOURCE.
func NewProvider(cfg config.SettlementConfig, conn *gorm.DB) (Provider, error) {
	rate, err := cfg.Rate()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.CommissionSource)) {
	case config.CommissionSourceDB:
		if conn == nil {
			return nil, fmt.Errorf("database required for commission source %q", config.CommissionSourceDB)
		}
		return NewTableProvider(conn, rate), nil
	default:
		return NewStaticProvider(rate), nil
	}
}

var one = decimal.NewFromInt(1)

// Remain is the seller payout for a deal: goods net of commission, floored to
// whole minor units, plus the untouched delivery charge.
func Remain(totalGoods, deliveryCharge int64, rate decimal.Decimal) int64 {
	net := decimal.NewFromInt(totalGoods).Mul(one.Sub(rate)).Floor()
	return net.IntPart() + deliveryCharge
}
