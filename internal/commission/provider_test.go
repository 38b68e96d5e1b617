package commission

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealflow-backend/pkg/config"
	"github.com/angelmondragon/dealflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
)

func TestRemain(t *testing.T) {
	cases := []struct {
		goods, charge int64
		rate          string
		want          int64
	}{
		{10000, 3000, "0", 13000},
		{10000, 3000, "0.035", 12650},
		{9999, 0, "0.035", 9649}, // 9649.035 floors
		{0, 3000, "0.1", 3000},
	}
	for _, tc := range cases {
		got := Remain(tc.goods, tc.charge, decimal.RequireFromString(tc.rate))
		assert.Equal(t, tc.want, got, "goods=%d rate=%s", tc.goods, tc.rate)
	}
}

func TestTableProviderPicksLatestEffectiveRow(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.CommissionRate{Rate: decimal.RequireFromString("0.05"), EffectiveAt: now.Add(-48 * time.Hour)}).Error)
	require.NoError(t, db.Create(&models.CommissionRate{Rate: decimal.RequireFromString("0.04"), EffectiveAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&models.CommissionRate{Rate: decimal.RequireFromString("0.09"), EffectiveAt: now.Add(time.Hour)}).Error)

	provider := NewTableProvider(db, decimal.RequireFromString("0.035"))
	provider.now = func() time.Time { return now }

	rate, err := provider.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.04")), "got %s", rate)
}

func TestTableProviderFallsBackWhenEmpty(t *testing.T) {
	provider := NewTableProvider(dbtest.Open(t), decimal.RequireFromString("0.035"))
	rate, err := provider.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.035")))
}

func TestNewProviderHonoursSource(t *testing.T) {
	p, err := NewProvider(config.SettlementConfig{CommissionRate: "0.02", CommissionSource: config.CommissionSourceConfig}, nil)
	require.NoError(t, err)
	rate, err := p.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.02")))

	_, err = NewProvider(config.SettlementConfig{CommissionRate: "0.02", CommissionSource: config.CommissionSourceDB}, nil)
	assert.Error(t, err)

	_, err = NewProvider(config.SettlementConfig{CommissionRate: "1.5"}, nil)
	assert.Error(t, err)
}
