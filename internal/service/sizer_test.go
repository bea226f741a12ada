package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrade/internal/domain"
)

func TestSizer(t *testing.T) {
	sizer := NewSizer(0.001)

	cases := []struct {
		name     string
		cfg      domain.CopyConfig
		side     domain.Side
		master   float64
		price    float64
		wantSize float64
		wantSide domain.Side
		wantSkip string
	}{
		{
			name:     "multiplier",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 0.1},
			side:     domain.SideBuy,
			master:   10,
			wantSize: 1,
			wantSide: domain.SideBuy,
		},
		{
			name:     "multiplier clamped to max",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 1, MaxLotSize: 5},
			side:     domain.SideSell,
			master:   1000,
			wantSize: 5,
			wantSide: domain.SideSell,
		},
		{
			name:     "multiplier raised to min",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 0.0001, MinLotSize: 0.01},
			side:     domain.SideBuy,
			master:   1,
			wantSize: 0.01,
			wantSide: domain.SideBuy,
		},
		{
			name:     "min lot off the increment grid rounds up",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 0.0001, MinLotSize: 0.0015},
			side:     domain.SideBuy,
			master:   1,
			wantSize: 0.002,
			wantSide: domain.SideBuy,
		},
		{
			name:     "small master with min lot",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 0.01, MinLotSize: 0.001},
			side:     domain.SideBuy,
			master:   1,
			wantSize: 0.01,
			wantSide: domain.SideBuy,
		},
		{
			name:     "fixed lot ignores master size",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeFixedLot, FixedLot: 2},
			side:     domain.SideBuy,
			master:   12345,
			wantSize: 2,
			wantSide: domain.SideBuy,
		},
		{
			name:     "fixed amount divides by price",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeFixedAmount, FixedAmount: 450},
			side:     domain.SideBuy,
			master:   1,
			price:    45000,
			wantSize: 0.01,
			wantSide: domain.SideBuy,
		},
		{
			name:     "percentage",
			cfg:      domain.CopyConfig{Mode: domain.CopyModePercentage, Percentage: 25},
			side:     domain.SideSell,
			master:   4,
			wantSize: 1,
			wantSide: domain.SideSell,
		},
		{
			name:     "reverse direction flips side",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 1, ReverseDirection: true},
			side:     domain.SideBuy,
			master:   3,
			wantSize: 3,
			wantSide: domain.SideSell,
		},
		{
			name:     "rounds down to increment",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 0.3333},
			side:     domain.SideBuy,
			master:   1,
			wantSize: 0.333,
			wantSide: domain.SideBuy,
		},
		{
			name:     "below increment is skipped",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 0.0001},
			side:     domain.SideBuy,
			master:   1,
			wantSide: domain.SideBuy,
			wantSkip: SkipBelowMinimum,
		},
		{
			name:     "zero multiplier is skipped",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeMultiplier, Multiplier: 0, MinLotSize: 1},
			side:     domain.SideBuy,
			master:   5,
			wantSide: domain.SideBuy,
			wantSkip: SkipNonPositive,
		},
		{
			name:     "max below increment is skipped",
			cfg:      domain.CopyConfig{Mode: domain.CopyModeFixedLot, FixedLot: 1, MaxLotSize: 0.0005},
			side:     domain.SideSell,
			master:   1,
			wantSide: domain.SideSell,
			wantSkip: SkipBelowMinimum,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sizer.Size(tc.cfg, tc.side, tc.master, tc.price)
			require.NoError(t, err)

			assert.Equal(t, tc.wantSide, got.Side)
			if tc.wantSkip != "" {
				assert.True(t, got.Skip)
				assert.Equal(t, tc.wantSkip, got.SkipReason)
				assert.Zero(t, got.Size)
				return
			}
			assert.False(t, got.Skip)
			assert.Equal(t, tc.wantSize, got.Size)
		})
	}
}

func TestSizerFixedAmountWithoutPrice(t *testing.T) {
	sizer := NewSizer(0.001)
	cfg := domain.CopyConfig{Mode: domain.CopyModeFixedAmount, FixedAmount: 100}

	_, err := sizer.Size(cfg, domain.SideBuy, 1, 0)
	assert.ErrorIs(t, err, domain.ErrPricing)
}

func TestSizerUnknownMode(t *testing.T) {
	sizer := NewSizer(0.001)
	_, err := sizer.Size(domain.CopyConfig{Mode: "martingale"}, domain.SideBuy, 1, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidFollower)
}

func TestSizerIsDeterministic(t *testing.T) {
	sizer := NewSizer(0.001)
	cfg := domain.CopyConfig{Mode: domain.CopyModePercentage, Percentage: 33.3, MinLotSize: 0.001, MaxLotSize: 10}

	first, err := sizer.Size(cfg, domain.SideBuy, 7.77, 0)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := sizer.Size(cfg, domain.SideBuy, 7.77, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
