package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BrokerAccountRepository defines the interface for master account data operations
type BrokerAccountRepository interface {
	// GetByID retrieves a broker account including its credentials
	GetByID(ctx context.Context, id uuid.UUID) (*BrokerAccount, error)

	// GetActive retrieves every broker account that should be monitored
	GetActive(ctx context.Context) ([]*BrokerAccount, error)

	// GetByUserID retrieves the broker accounts owned by a user
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*BrokerAccount, error)

	// Deactivate marks an account inactive; accounts are never deleted while referenced
	Deactivate(ctx context.Context, id uuid.UUID) error

	// Link stores a newly linked account. An active account of the same user with the
	// same name is replaced: it is deactivated and its followers move to the new one.
	// The ids of replaced accounts are returned.
	Link(ctx context.Context, account *BrokerAccount) (replaced []uuid.UUID, err error)
}

// FollowerRepository defines the interface for follower data operations
type FollowerRepository interface {
	// GetByID retrieves a follower including its credentials and copy config
	GetByID(ctx context.Context, id uuid.UUID) (*Follower, error)

	// GetActiveByBroker retrieves the active followers of a master account
	GetActiveByBroker(ctx context.Context, brokerID uuid.UUID) ([]*Follower, error)

	// GetByBroker retrieves all followers of a master account regardless of status
	GetByBroker(ctx context.Context, brokerID uuid.UUID) ([]*Follower, error)

	// GetByUserID retrieves the followers owned by a user
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Follower, error)

	// Create stores a new follower
	Create(ctx context.Context, follower *Follower) error

	// UpdateCopyConfig replaces a follower's copy settings
	UpdateCopyConfig(ctx context.Context, id uuid.UUID, cfg CopyConfig) error
}

// CopyTradeRepository defines the interface for copy trade persistence
type CopyTradeRepository interface {
	// Record inserts a row; a second row for the same (master trade, follower) is a no-op.
	// inserted is false when the row already existed.
	Record(ctx context.Context, trade *CopyTrade) (inserted bool, err error)

	// Exists reports whether a row for (master trade, follower) is already recorded
	Exists(ctx context.Context, masterTradeID string, followerID uuid.UUID) (bool, error)

	// MarkExited stamps exit bookkeeping on the follower's executed rows for a symbol
	MarkExited(ctx context.Context, brokerID, followerID uuid.UUID, symbol string, at time.Time) (int64, error)

	// List retrieves rows matching the filter, newest first
	List(ctx context.Context, filter CopyTradeFilter) ([]*CopyTrade, error)

	// Stats aggregates a follower's rows
	Stats(ctx context.Context, followerID uuid.UUID) (*FollowerStats, error)
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByEmail retrieves a user by login email
	GetByEmail(ctx context.Context, email string) (*User, error)
}
