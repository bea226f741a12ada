package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"copytrade/internal/domain"
)

const defaultListLimit = 100

// CopyTradeRepositoryImpl implements the CopyTradeRepository interface
type CopyTradeRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewCopyTradeRepository creates a new CopyTradeRepository
func NewCopyTradeRepository(db *pgxpool.Pool) domain.CopyTradeRepository {
	return &CopyTradeRepositoryImpl{db: db}
}

// Record inserts a copy trade row. A duplicate (master_trade_id, follower_id) is left untouched.
func (r *CopyTradeRepositoryImpl) Record(ctx context.Context, trade *domain.CopyTrade) (bool, error) {
	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	if trade.EntryTime.IsZero() {
		trade.EntryTime = time.Now().UTC()
	}

	query := `
		INSERT INTO copy_trades (
			id, master_trade_id, master_broker_id, follower_id, user_id, follower_order_id,
			original_symbol, original_side, original_size, original_price,
			copied_side, copied_size, copied_price, status, error_message, entry_time
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT ON CONSTRAINT copy_trades_master_trade_follower_key DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		trade.ID,
		trade.MasterTradeID,
		trade.MasterBrokerID,
		trade.FollowerID,
		trade.UserID,
		trade.FollowerOrderID,
		trade.OriginalSymbol,
		string(trade.OriginalSide),
		trade.OriginalSize,
		trade.OriginalPrice,
		string(trade.CopiedSide),
		trade.CopiedSize,
		trade.CopiedPrice,
		trade.Status,
		trade.ErrorMessage,
		trade.EntryTime,
	).Scan(&trade.CreatedAt, &trade.UpdatedAt)

	// DO NOTHING returns no row
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("failed to record copy trade", err)
	}
	return true, nil
}

// Exists reports whether a row for (master trade, follower) is already recorded
func (r *CopyTradeRepositoryImpl) Exists(ctx context.Context, masterTradeID string, followerID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM copy_trades WHERE master_trade_id = $1 AND follower_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, masterTradeID, followerID).Scan(&exists); err != nil {
		return false, wrapErr("failed to check copy trade", err)
	}
	return exists, nil
}

// MarkExited moves the follower's executed rows for a symbol to exited
func (r *CopyTradeRepositoryImpl) MarkExited(ctx context.Context, brokerID, followerID uuid.UUID, symbol string, at time.Time) (int64, error) {
	query := `
		UPDATE copy_trades
		SET status = $5, exit_time = $4, updated_at = NOW()
		WHERE master_broker_id = $1 AND follower_id = $2 AND original_symbol = $3 AND status = $6
	`

	tag, err := r.db.Exec(ctx, query,
		brokerID, followerID, symbol, at,
		domain.CopyStatusExited, domain.CopyStatusExecuted,
	)
	if err != nil {
		return 0, wrapErr("failed to mark copy trades exited", err)
	}
	return tag.RowsAffected(), nil
}

// List retrieves rows matching the filter, newest first
func (r *CopyTradeRepositoryImpl) List(ctx context.Context, filter domain.CopyTradeFilter) ([]*domain.CopyTrade, error) {
	var (
		where []string
		args  []any
	)
	if filter.BrokerID != nil {
		args = append(args, *filter.BrokerID)
		where = append(where, fmt.Sprintf("master_broker_id = $%d", len(args)))
	}
	if filter.FollowerID != nil {
		args = append(args, *filter.FollowerID)
		where = append(where, fmt.Sprintf("follower_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `
		SELECT id, master_trade_id, master_broker_id, follower_id, user_id, follower_order_id,
		       original_symbol, original_side, original_size, original_price,
		       copied_side, copied_size, copied_price, status, error_message,
		       entry_time, exit_time, created_at, updated_at
		FROM copy_trades
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("failed to query copy trades", err)
	}
	defer rows.Close()

	var trades []*domain.CopyTrade
	for rows.Next() {
		t := &domain.CopyTrade{}
		var originalSide, copiedSide string
		err := rows.Scan(
			&t.ID,
			&t.MasterTradeID,
			&t.MasterBrokerID,
			&t.FollowerID,
			&t.UserID,
			&t.FollowerOrderID,
			&t.OriginalSymbol,
			&originalSide,
			&t.OriginalSize,
			&t.OriginalPrice,
			&copiedSide,
			&t.CopiedSize,
			&t.CopiedPrice,
			&t.Status,
			&t.ErrorMessage,
			&t.EntryTime,
			&t.ExitTime,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, wrapErr("failed to scan copy trade", err)
		}
		t.OriginalSide = domain.Side(originalSide)
		t.CopiedSide = domain.Side(copiedSide)
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("error iterating copy trades", err)
	}
	return trades, nil
}

// Stats aggregates a follower's copy history
func (r *CopyTradeRepositoryImpl) Stats(ctx context.Context, followerID uuid.UUID) (*domain.FollowerStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('executed', 'exited')),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			COUNT(*) FILTER (WHERE status = 'executed'),
			COALESCE(SUM(copied_size * copied_price) FILTER (WHERE status IN ('executed', 'exited')), 0)::float8,
			MAX(created_at)
		FROM copy_trades
		WHERE follower_id = $1
	`

	stats := &domain.FollowerStats{FollowerID: followerID}
	err := r.db.QueryRow(ctx, query, followerID).Scan(
		&stats.TotalTrades,
		&stats.SuccessfulTrades,
		&stats.FailedTrades,
		&stats.SkippedTrades,
		&stats.OpenTrades,
		&stats.TotalVolume,
		&stats.LastTradeAt,
	)
	if err != nil {
		return nil, wrapErr("failed to get follower stats", err)
	}
	stats.Finalize()
	return stats, nil
}
