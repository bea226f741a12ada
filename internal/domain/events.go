package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeSource says which exchange feed produced a TradeEvent
type TradeSource string

// TradeSource constants
const (
	SourceFill     TradeSource = "fill"
	SourcePosition TradeSource = "position"
	SourceManual   TradeSource = "manual"
)

// TradeEvent is a newly observed master trade
type TradeEvent struct {
	MasterTradeID string      `json:"master_trade_id"`
	BrokerID      uuid.UUID   `json:"broker_id"`
	Symbol        string      `json:"symbol"`
	ProductID     int64       `json:"product_id"`
	Side          Side        `json:"side"`
	Size          float64     `json:"size"`
	Price         float64     `json:"price"`
	Source        TradeSource `json:"source"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// CloseEvent marks a master position that went from nonzero to zero
type CloseEvent struct {
	BrokerID     uuid.UUID `json:"broker_id"`
	Symbol       string    `json:"symbol"`
	ProductID    int64     `json:"product_id"`
	PreviousSize float64   `json:"previous_size"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// CopyResult is the per-follower outcome of handling one event
type CopyResult struct {
	FollowerID    uuid.UUID `json:"follower_id"`
	Follower      string    `json:"follower"`
	MasterTradeID string    `json:"master_trade_id,omitempty"`
	Trade         string    `json:"trade"`
	Action        string    `json:"action"`
	Success       bool      `json:"success"`
	Status        string    `json:"status"`
	Side          Side      `json:"side,omitempty"`
	CopySize      float64   `json:"copy_size,omitempty"`
	OrderID       int64     `json:"order_id,omitempty"`
	Error         string    `json:"error,omitempty"`

	// Unrecorded marks an outcome, possibly a placed order, whose copy_trades row could not be written
	Unrecorded bool `json:"unrecorded,omitempty"`
}

// CopyResult action constants
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// TickSummary is what one poll tick did for a broker account
type TickSummary struct {
	BrokerID         uuid.UUID    `json:"broker_id"`
	TotalTradesFound int          `json:"total_trades_found"`
	ClosesFound      int          `json:"closes_found"`
	ActiveFollowers  int          `json:"active_followers"`
	TradesCopied     int          `json:"trades_copied"`
	PositionsClosed  int          `json:"positions_closed"`
	CopyResults      []CopyResult `json:"copy_results"`
	Timestamp        time.Time    `json:"timestamp"`
}
