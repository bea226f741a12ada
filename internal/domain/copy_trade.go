package domain

import (
	"time"

	"github.com/google/uuid"
)

// CopyTrade records one mirrored execution attempt for a (master trade, follower) pair
type CopyTrade struct {
	ID              uuid.UUID  `json:"id"`
	MasterTradeID   string     `json:"master_trade_id"`
	MasterBrokerID  uuid.UUID  `json:"master_broker_id"`
	FollowerID      uuid.UUID  `json:"follower_id"`
	UserID          uuid.UUID  `json:"user_id"`
	FollowerOrderID *string    `json:"follower_order_id,omitempty"`
	OriginalSymbol  string     `json:"original_symbol"`
	OriginalSide    Side       `json:"original_side"`
	OriginalSize    float64    `json:"original_size"`
	OriginalPrice   float64    `json:"original_price"`
	CopiedSide      Side       `json:"copied_side"`
	CopiedSize      float64    `json:"copied_size"`
	CopiedPrice     float64    `json:"copied_price"`
	Status          string     `json:"status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	EntryTime       time.Time  `json:"entry_time"`
	ExitTime        *time.Time `json:"exit_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CopyTrade status constants
const (
	CopyStatusPending  = "pending"
	CopyStatusExecuted = "executed"
	CopyStatusFailed   = "failed"
	CopyStatusSkipped  = "skipped"
	CopyStatusTest     = "test"
	CopyStatusExited   = "exited"
)

// CopyTradeFilter narrows list queries for the read API
type CopyTradeFilter struct {
	BrokerID   *uuid.UUID
	FollowerID *uuid.UUID
	Status     string
	Limit      int
}
