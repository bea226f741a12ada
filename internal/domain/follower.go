package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CopyMode selects how a follower's order size is derived from the master trade
type CopyMode string

// CopyMode constants
const (
	CopyModeMultiplier  CopyMode = "multiplier"
	CopyModeFixedLot    CopyMode = "fixed_lot"
	CopyModeFixedAmount CopyMode = "fixed_amount"
	CopyModePercentage  CopyMode = "percentage"
)

// Valid reports whether m is a known copy mode
func (m CopyMode) Valid() bool {
	switch m {
	case CopyModeMultiplier, CopyModeFixedLot, CopyModeFixedAmount, CopyModePercentage:
		return true
	}
	return false
}

// CopyConfig is the per-follower sizing configuration.
// A zero MinLotSize or MaxLotSize leaves that side of the clamp open.
// An empty SymbolFilter copies every symbol.
type CopyConfig struct {
	Mode              CopyMode `json:"copy_mode"`
	Multiplier        float64  `json:"multiplier"`
	FixedLot          float64  `json:"fixed_lot"`
	FixedAmount       float64  `json:"fixed_amount"`
	Percentage        float64  `json:"percentage"`
	MinLotSize        float64  `json:"min_lot_size"`
	MaxLotSize        float64  `json:"max_lot_size"`
	ReverseDirection  bool     `json:"reverse_direction"`
	CopyPositionClose bool     `json:"copy_position_close"`
	SymbolFilter      []string `json:"symbol_filter"`
}

// DefaultCopyConfig is what a newly linked follower starts with
func DefaultCopyConfig() CopyConfig {
	return CopyConfig{
		Mode:              CopyModeMultiplier,
		Multiplier:        1,
		MinLotSize:        0.001,
		CopyPositionClose: true,
		SymbolFilter:      []string{},
	}
}

// Allows reports whether trades in symbol are copied
func (c CopyConfig) Allows(symbol string) bool {
	if len(c.SymbolFilter) == 0 {
		return true
	}
	return slices.Contains(c.SymbolFilter, strings.ToUpper(strings.TrimSpace(symbol)))
}

// NormalizeSymbols upper-cases and dedupes the symbol filter, dropping blanks
func (c *CopyConfig) NormalizeSymbols() {
	out := make([]string, 0, len(c.SymbolFilter))
	for _, s := range c.SymbolFilter {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	c.SymbolFilter = out
}

// Check rejects settings the sizer cannot honour
func (c CopyConfig) Check() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: unknown copy mode %q", ErrInvalidFollower, c.Mode)
	}
	for name, v := range map[string]float64{
		"multiplier":   c.Multiplier,
		"fixed_lot":    c.FixedLot,
		"fixed_amount": c.FixedAmount,
		"percentage":   c.Percentage,
		"min_lot_size": c.MinLotSize,
		"max_lot_size": c.MaxLotSize,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidFollower, name)
		}
	}
	if c.MaxLotSize > 0 && c.MinLotSize > c.MaxLotSize {
		return fmt.Errorf("%w: min lot %.6f exceeds max lot %.6f", ErrInvalidFollower, c.MinLotSize, c.MaxLotSize)
	}
	return nil
}

// Follower is an account that mirrors a BrokerAccount with its own credentials
type Follower struct {
	ID                    uuid.UUID   `json:"id"`
	UserID                uuid.UUID   `json:"user_id"`
	FollowerName          string      `json:"follower_name"`
	MasterBrokerAccountID uuid.UUID   `json:"master_broker_account_id"`
	Credentials           Credentials `json:"-"`
	CopyConfig            CopyConfig  `json:"copy_config"`
	AccountStatus         string      `json:"account_status"`
	IsVerified            bool        `json:"is_verified"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// IsActive reports whether the follower should receive copies
func (f *Follower) IsActive() bool {
	return f.AccountStatus == AccountStatusActive
}

// Validate checks that the follower can trade against master.
// Orders land on the follower's own account, so it must sign with its own key.
func (f *Follower) Validate(master *BrokerAccount) error {
	if f.Credentials.IsZero() {
		return fmt.Errorf("%w: follower %s has no API credentials", ErrInvalidFollower, f.FollowerName)
	}
	if master != nil && f.Credentials.APIKey == master.Credentials.APIKey {
		return fmt.Errorf("%w: follower %s uses the master account's API key", ErrInvalidFollower, f.FollowerName)
	}
	if master != nil && f.MasterBrokerAccountID != master.ID {
		return fmt.Errorf("%w: follower %s does not follow broker %s", ErrInvalidFollower, f.FollowerName, master.ID)
	}
	if err := f.CopyConfig.Check(); err != nil {
		return fmt.Errorf("follower %s: %w", f.FollowerName, err)
	}
	return nil
}

// FollowerStats summarises a follower's copy history
type FollowerStats struct {
	FollowerID       uuid.UUID  `json:"follower_id"`
	TotalTrades      int        `json:"total_trades"`
	SuccessfulTrades int        `json:"successful_trades"`
	FailedTrades     int        `json:"failed_trades"`
	SkippedTrades    int        `json:"skipped_trades"`
	OpenTrades       int        `json:"open_trades"`
	SuccessRate      float64    `json:"success_rate"`
	TotalVolume      float64    `json:"total_volume"`
	AverageTradeSize float64    `json:"average_trade_size"`
	LastTradeAt      *time.Time `json:"last_trade_at,omitempty"`
}

// Finalize derives the rates from the counters.
// Successful trades are executed or exited rows; test rows count toward neither side.
func (s *FollowerStats) Finalize() {
	if attempted := s.SuccessfulTrades + s.FailedTrades; attempted > 0 {
		s.SuccessRate = float64(s.SuccessfulTrades) / float64(attempted) * 100
	}
	if s.SuccessfulTrades > 0 {
		s.AverageTradeSize = s.TotalVolume / float64(s.SuccessfulTrades)
	}
}
