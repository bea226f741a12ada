package domain

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFollowerValidate(t *testing.T) {
	master := &BrokerAccount{
		ID:          uuid.New(),
		Credentials: Credentials{APIKey: "master-key", APISecret: "master-secret"},
		IsActive:    true,
	}
	valid := func() *Follower {
		return &Follower{
			FollowerName:          "alice",
			MasterBrokerAccountID: master.ID,
			Credentials:           Credentials{APIKey: "alice-key", APISecret: "alice-secret"},
			CopyConfig:            CopyConfig{Mode: CopyModeMultiplier, Multiplier: 1},
			AccountStatus:         AccountStatusActive,
		}
	}

	assert.NoError(t, valid().Validate(master))

	cases := map[string]func(f *Follower){
		"no secret":     func(f *Follower) { f.Credentials.APISecret = "" },
		"master key":    func(f *Follower) { f.Credentials.APIKey = "master-key" },
		"other master":  func(f *Follower) { f.MasterBrokerAccountID = uuid.New() },
		"unknown mode":  func(f *Follower) { f.CopyConfig.Mode = "martingale" },
		"min above max": func(f *Follower) { f.CopyConfig.MinLotSize, f.CopyConfig.MaxLotSize = 2, 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := valid()
			mutate(f)
			assert.ErrorIs(t, f.Validate(master), ErrInvalidFollower)
		})
	}

	// an open max bound never conflicts with min
	f := valid()
	f.CopyConfig.MinLotSize = 5
	assert.NoError(t, f.Validate(master))
}

func TestBrokerMonitorable(t *testing.T) {
	b := &BrokerAccount{IsActive: true, Credentials: Credentials{APIKey: "k", APISecret: "s"}}
	assert.True(t, b.Monitorable())

	b.IsActive = false
	assert.False(t, b.Monitorable())

	b.IsActive = true
	b.Credentials.APIKey = ""
	assert.False(t, b.Monitorable())
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"buy": SideBuy, " Long ": SideBuy, "SELL": SideSell, "short": SideSell} {
		got, ok := ParseSide(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseSide("hold")
	assert.False(t, ok)
}

func TestPositionSides(t *testing.T) {
	long := &Position{Size: 3}
	assert.Equal(t, SideBuy, long.Side())
	assert.Equal(t, SideSell, long.CloseSide())

	short := &Position{Size: -2.5}
	assert.True(t, short.IsOpen())
	assert.Equal(t, SideBuy, short.CloseSide())
	assert.Equal(t, 2.5, short.AbsSize())

	assert.False(t, (&Position{}).IsOpen())
}

func TestExchangeErrorClassification(t *testing.T) {
	err := fmt.Errorf("place order: %w", &ExchangeError{
		Kind: ErrInsufficientMargin, Code: "insufficient_margin", HTTPStatus: 400, Op: "POST /v2/orders",
	})
	assert.ErrorIs(t, err, ErrInsufficientMargin)
	assert.False(t, Retryable(err))
	assert.Equal(t, "insufficient_margin", ErrorKind(err))
	assert.Contains(t, err.Error(), "POST /v2/orders: insufficient margin (insufficient_margin)")

	net := &ExchangeError{Kind: ErrNetwork, HTTPStatus: 503}
	assert.True(t, Retryable(net))
	assert.Equal(t, "network_error", ErrorKind(net))

	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "unknown", ErrorKind(fmt.Errorf("boom")))
	assert.Equal(t, "persistence_error", ErrorKind(fmt.Errorf("%w: %w", ErrPersistence, ErrForeignKeyViolation)))
}

func TestCopyConfigSymbolFilter(t *testing.T) {
	cfg := DefaultCopyConfig()
	assert.True(t, cfg.Allows("BTCUSD"))
	assert.NoError(t, cfg.Check())

	cfg.SymbolFilter = []string{" ethusd", "", "ETHUSD", "solusd"}
	cfg.NormalizeSymbols()
	assert.Equal(t, []string{"ETHUSD", "SOLUSD"}, cfg.SymbolFilter)
	assert.True(t, cfg.Allows("ethusd "))
	assert.False(t, cfg.Allows("BTCUSD"))
}

func TestCopyConfigRejectsNegativeValues(t *testing.T) {
	cfg := DefaultCopyConfig()
	cfg.Percentage = -5
	assert.ErrorIs(t, cfg.Check(), ErrInvalidFollower)
}

func TestFollowerStatsFinalize(t *testing.T) {
	s := FollowerStats{TotalTrades: 6, SuccessfulTrades: 3, FailedTrades: 1, SkippedTrades: 2, TotalVolume: 300}
	s.Finalize()
	assert.Equal(t, 75.0, s.SuccessRate)
	assert.Equal(t, 100.0, s.AverageTradeSize)

	var empty FollowerStats
	empty.Finalize()
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.AverageTradeSize)
}
