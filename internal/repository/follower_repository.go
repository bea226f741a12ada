package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"copytrade/internal/domain"
)

// FollowerRepositoryImpl implements the FollowerRepository interface
type FollowerRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewFollowerRepository creates a new FollowerRepository
func NewFollowerRepository(db *pgxpool.Pool) domain.FollowerRepository {
	return &FollowerRepositoryImpl{db: db}
}

const followerColumns = `
	id, user_id, follower_name, master_broker_account_id, api_key, api_secret,
	copy_mode, multiplier, fixed_lot, fixed_amount, percentage, min_lot_size, max_lot_size,
	reverse_direction, copy_position_close, symbol_filter, account_status, is_verified, created_at, updated_at
`

func scanFollower(row pgx.Row) (*domain.Follower, error) {
	f := &domain.Follower{}
	var mode string
	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.FollowerName,
		&f.MasterBrokerAccountID,
		&f.Credentials.APIKey,
		&f.Credentials.APISecret,
		&mode,
		&f.CopyConfig.Multiplier,
		&f.CopyConfig.FixedLot,
		&f.CopyConfig.FixedAmount,
		&f.CopyConfig.Percentage,
		&f.CopyConfig.MinLotSize,
		&f.CopyConfig.MaxLotSize,
		&f.CopyConfig.ReverseDirection,
		&f.CopyConfig.CopyPositionClose,
		&f.CopyConfig.SymbolFilter,
		&f.AccountStatus,
		&f.IsVerified,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.CopyConfig.Mode = domain.CopyMode(mode)
	return f, nil
}

// GetByID retrieves a follower by ID
func (r *FollowerRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Follower, error) {
	query := `SELECT ` + followerColumns + ` FROM followers WHERE id = $1`

	f, err := scanFollower(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapErr("failed to get follower by ID", err)
	}
	return f, nil
}

// GetActiveByBroker retrieves the active followers of a master account
func (r *FollowerRepositoryImpl) GetActiveByBroker(ctx context.Context, brokerID uuid.UUID) ([]*domain.Follower, error) {
	query := `
		SELECT ` + followerColumns + `
		FROM followers
		WHERE master_broker_account_id = $1 AND account_status = $2
		ORDER BY follower_name ASC
	`
	return r.list(ctx, "active followers", query, brokerID, domain.AccountStatusActive)
}

// GetByBroker retrieves all followers of a master account
func (r *FollowerRepositoryImpl) GetByBroker(ctx context.Context, brokerID uuid.UUID) ([]*domain.Follower, error) {
	query := `
		SELECT ` + followerColumns + `
		FROM followers
		WHERE master_broker_account_id = $1
		ORDER BY follower_name ASC
	`
	return r.list(ctx, "followers by broker", query, brokerID)
}

// GetByUserID retrieves the followers owned by a user
func (r *FollowerRepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Follower, error) {
	query := `
		SELECT ` + followerColumns + `
		FROM followers
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, "followers by user", query, userID)
}

// Create inserts a new follower
func (r *FollowerRepositoryImpl) Create(ctx context.Context, f *domain.Follower) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.AccountStatus == "" {
		f.AccountStatus = domain.AccountStatusActive
	}
	f.CopyConfig.NormalizeSymbols()

	query := `
		INSERT INTO followers (
			id, user_id, follower_name, master_broker_account_id, api_key, api_secret,
			copy_mode, multiplier, fixed_lot, fixed_amount, percentage, min_lot_size, max_lot_size,
			reverse_direction, copy_position_close, symbol_filter, account_status, is_verified
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		RETURNING created_at, updated_at
	`

	cfg := f.CopyConfig
	err := r.db.QueryRow(ctx, query,
		f.ID,
		f.UserID,
		f.FollowerName,
		f.MasterBrokerAccountID,
		f.Credentials.APIKey,
		f.Credentials.APISecret,
		string(cfg.Mode),
		cfg.Multiplier,
		cfg.FixedLot,
		cfg.FixedAmount,
		cfg.Percentage,
		cfg.MinLotSize,
		cfg.MaxLotSize,
		cfg.ReverseDirection,
		cfg.CopyPositionClose,
		cfg.SymbolFilter,
		f.AccountStatus,
		f.IsVerified,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return wrapErr("failed to create follower", err)
	}
	return nil
}

// UpdateCopyConfig replaces a follower's copy settings
func (r *FollowerRepositoryImpl) UpdateCopyConfig(ctx context.Context, id uuid.UUID, cfg domain.CopyConfig) error {
	cfg.NormalizeSymbols()

	query := `
		UPDATE followers
		SET copy_mode = $2, multiplier = $3, fixed_lot = $4, fixed_amount = $5, percentage = $6,
			min_lot_size = $7, max_lot_size = $8, reverse_direction = $9, copy_position_close = $10,
			symbol_filter = $11, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		id,
		string(cfg.Mode),
		cfg.Multiplier,
		cfg.FixedLot,
		cfg.FixedAmount,
		cfg.Percentage,
		cfg.MinLotSize,
		cfg.MaxLotSize,
		cfg.ReverseDirection,
		cfg.CopyPositionClose,
		cfg.SymbolFilter,
	)
	if err != nil {
		return wrapErr("failed to update follower settings", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("follower %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *FollowerRepositoryImpl) list(ctx context.Context, what, query string, args ...any) ([]*domain.Follower, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("failed to query "+what, err)
	}
	defer rows.Close()

	var followers []*domain.Follower
	for rows.Next() {
		f, err := scanFollower(rows)
		if err != nil {
			return nil, wrapErr("failed to scan follower", err)
		}
		followers = append(followers, f)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("error iterating "+what, err)
	}
	return followers, nil
}
