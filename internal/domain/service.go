package domain

import (
	"context"

	"github.com/google/uuid"
)

// ExchangeClient defines the signed exchange calls one account can make.
// Every method signs with the credentials passed in.
type ExchangeClient interface {
	// GetPositions lists open margined positions
	GetPositions(ctx context.Context, creds Credentials) ([]Position, error)

	// GetPosition fetches the live position for one product; a flat product returns Size 0
	GetPosition(ctx context.Context, creds Credentials, productID int64) (*Position, error)

	// GetFills lists the most recent fills, newest first
	GetFills(ctx context.Context, creds Credentials, limit int) ([]Fill, error)

	// GetOpenOrders lists resting orders, optionally for one product (0 means all)
	GetOpenOrders(ctx context.Context, creds Credentials, productID int64) ([]Order, error)

	// PlaceOrder submits a market order. Never retried automatically.
	PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (*OrderResult, error)

	// CancelOrder cancels one resting order
	CancelOrder(ctx context.Context, creds Credentials, orderID, productID int64) error

	// GetMarkPrice reads the public ticker for a symbol
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
}

// EventPublisher defines the sink for copy results
type EventPublisher interface {
	// PublishCopyResult emits one per-follower outcome keyed by broker
	PublishCopyResult(ctx context.Context, brokerID uuid.UUID, result CopyResult) error

	// Close flushes and releases the publisher
	Close() error
}

// CopyTradingService defines the orchestration the monitor and the HTTP trigger call
type CopyTradingService interface {
	// RunTick polls one broker account and copies everything new to its followers
	RunTick(ctx context.Context, brokerID uuid.UUID) (*TickSummary, error)

	// ProcessTrade copies one externally supplied trade to the broker's followers
	ProcessTrade(ctx context.Context, brokerID uuid.UUID, event TradeEvent, testMode bool) (*TickSummary, error)
}
