package domain

import (
	"math"
	"strings"
	"time"
)

// Side is an order or trade direction as the exchange spells it
type Side string

// Side constants
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalizes exchange and frontend spellings of a side
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "long":
		return SideBuy, true
	case "sell", "s", "short":
		return SideSell, true
	}
	return "", false
}

// Opposite returns the side that reduces a position opened with s
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Position is exchange-side state. Size is signed: positive long, negative short.
// Fetched, never persisted.
type Position struct {
	ProductID     int64     `json:"product_id"`
	Symbol        string    `json:"symbol"`
	Size          float64   `json:"size"`
	EntryPrice    float64   `json:"entry_price"`
	MarkPrice     float64   `json:"mark_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	ObservedAt    time.Time `json:"observed_at"`
}

// IsOpen reports whether the position carries exposure
func (p *Position) IsOpen() bool {
	return p.Size != 0
}

// Side returns the direction of the open exposure
func (p *Position) Side() Side {
	if p.Size < 0 {
		return SideSell
	}
	return SideBuy
}

// CloseSide is the order side that flattens the position
func (p *Position) CloseSide() Side {
	return p.Side().Opposite()
}

// AbsSize is the unsigned contract count
func (p *Position) AbsSize() float64 {
	return math.Abs(p.Size)
}

// Fill is an executed (partial or full) trade report
type Fill struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	ProductID int64     `json:"product_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is a resting or historical exchange order
type Order struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	Symbol       string  `json:"symbol"`
	Side         Side    `json:"side"`
	Size         float64 `json:"size"`
	UnfilledSize float64 `json:"unfilled_size"`
	State        string  `json:"state"`
	ReduceOnly   bool    `json:"reduce_only"`
}

// OrderRequest is the payload for a new market order
type OrderRequest struct {
	Symbol     string
	ProductID  int64
	Side       Side
	Size       float64
	ReduceOnly bool
	ClientID   string
}

// OrderResult is the exchange's acknowledgement of a placed order
type OrderResult struct {
	OrderID          int64   `json:"order_id"`
	Status           string  `json:"status"`
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	Size             float64 `json:"size"`
	AverageFillPrice float64 `json:"average_fill_price"`
}
