package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"copytrade/internal/domain"
)

// Skip reasons reported by the sizer
const (
	SkipNonPositive  = "non-positive size"
	SkipBelowMinimum = "below minimum"
)

// SizeDecision is the sizer's verdict for one follower and one master trade
type SizeDecision struct {
	Size       float64
	Side       domain.Side
	Skip       bool
	SkipReason string
}

// Sizer converts a master trade into a follower order size. It is pure and deterministic.
type Sizer struct {
	increment decimal.Decimal
}

// NewSizer creates a sizer that rounds down to the exchange's tradable increment
func NewSizer(increment float64) *Sizer {
	inc := decimal.NewFromFloat(increment)
	if !inc.IsPositive() {
		inc = decimal.New(1, -3)
	}
	return &Sizer{increment: inc}
}

// Size computes the follower order for a master trade of masterSize at price
func (s *Sizer) Size(cfg domain.CopyConfig, side domain.Side, masterSize, price float64) (SizeDecision, error) {
	decision := SizeDecision{Side: side}
	if cfg.ReverseDirection {
		decision.Side = side.Opposite()
	}

	master := decimal.NewFromFloat(masterSize).Abs()

	var raw decimal.Decimal
	switch cfg.Mode {
	case domain.CopyModeMultiplier:
		raw = master.Mul(decimal.NewFromFloat(cfg.Multiplier))
	case domain.CopyModeFixedLot:
		raw = decimal.NewFromFloat(cfg.FixedLot)
	case domain.CopyModeFixedAmount:
		if price <= 0 {
			return decision, fmt.Errorf("%w: no usable price for fixed amount sizing", domain.ErrPricing)
		}
		raw = decimal.NewFromFloat(cfg.FixedAmount).Div(decimal.NewFromFloat(price))
	case domain.CopyModePercentage:
		raw = master.Mul(decimal.NewFromFloat(cfg.Percentage)).Div(decimal.NewFromInt(100))
	default:
		return decision, fmt.Errorf("%w: unknown copy mode %q", domain.ErrInvalidFollower, cfg.Mode)
	}

	if !raw.IsPositive() {
		decision.Skip = true
		decision.SkipReason = SkipNonPositive
		return decision, nil
	}

	if cfg.MinLotSize > 0 {
		// a minimum off the increment grid rounds up so flooring cannot undercut it
		minLot := decimal.NewFromFloat(cfg.MinLotSize).Div(s.increment).Ceil().Mul(s.increment)
		raw = decimal.Max(raw, minLot)
	}
	if cfg.MaxLotSize > 0 {
		raw = decimal.Min(raw, decimal.NewFromFloat(cfg.MaxLotSize))
	}

	rounded := raw.Div(s.increment).Floor().Mul(s.increment)
	if rounded.LessThan(s.increment) {
		decision.Skip = true
		decision.SkipReason = SkipBelowMinimum
		return decision, nil
	}

	decision.Size = rounded.InexactFloat64()
	return decision, nil
}
