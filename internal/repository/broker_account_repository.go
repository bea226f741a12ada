package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"copytrade/internal/domain"
)

// BrokerAccountRepositoryImpl implements the BrokerAccountRepository interface
type BrokerAccountRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewBrokerAccountRepository creates a new BrokerAccountRepository
func NewBrokerAccountRepository(db *pgxpool.Pool) domain.BrokerAccountRepository {
	return &BrokerAccountRepositoryImpl{db: db}
}

const brokerAccountColumns = `
	id, user_id, account_name, broker_name, api_key, api_secret,
	is_active, is_verified, account_status, created_at, updated_at
`

func scanBrokerAccount(row pgx.Row) (*domain.BrokerAccount, error) {
	b := &domain.BrokerAccount{}
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.AccountName,
		&b.BrokerName,
		&b.Credentials.APIKey,
		&b.Credentials.APISecret,
		&b.IsActive,
		&b.IsVerified,
		&b.AccountStatus,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetByID retrieves a broker account by ID
func (r *BrokerAccountRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.BrokerAccount, error) {
	query := `SELECT ` + brokerAccountColumns + ` FROM broker_accounts WHERE id = $1`

	b, err := scanBrokerAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapErr("failed to get broker account by ID", err)
	}
	return b, nil
}

// GetActive retrieves every active broker account
func (r *BrokerAccountRepositoryImpl) GetActive(ctx context.Context) ([]*domain.BrokerAccount, error) {
	query := `
		SELECT ` + brokerAccountColumns + `
		FROM broker_accounts
		WHERE is_active = TRUE AND api_key <> '' AND api_secret <> ''
		ORDER BY created_at ASC
	`
	return r.list(ctx, "active broker accounts", query)
}

// GetByUserID retrieves the broker accounts owned by a user
func (r *BrokerAccountRepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.BrokerAccount, error) {
	query := `
		SELECT ` + brokerAccountColumns + `
		FROM broker_accounts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, "broker accounts by user", query, userID)
}

// Deactivate marks the account inactive and pauses its active followers in one transaction
func (r *BrokerAccountRepositoryImpl) Deactivate(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapErr("failed to begin deactivate", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE broker_accounts
		SET is_active = FALSE, account_status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, domain.AccountStatusInactive)
	if err != nil {
		return wrapErr("failed to deactivate broker account", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("broker account %s: %w", id, domain.ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		UPDATE followers
		SET account_status = $2, updated_at = NOW()
		WHERE master_broker_account_id = $1 AND account_status = $3
	`, id, domain.AccountStatusPaused, domain.AccountStatusActive)
	if err != nil {
		return wrapErr("failed to pause followers", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("failed to commit deactivate", err)
	}
	return nil
}

// Link inserts a new account and retires the user's active account of the same name in one transaction.
// Followers of a retired account are moved to the new one so they keep copying.
func (r *BrokerAccountRepositoryImpl) Link(ctx context.Context, b *domain.BrokerAccount) ([]uuid.UUID, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.BrokerName == "" {
		b.BrokerName = "delta"
	}
	b.IsActive = true
	b.AccountStatus = domain.AccountStatusActive

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, wrapErr("failed to begin link", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE broker_accounts
		SET is_active = FALSE, account_status = $3, updated_at = NOW()
		WHERE user_id = $1 AND account_name = $2 AND is_active = TRUE
		RETURNING id
	`, b.UserID, b.AccountName, domain.AccountStatusInactive)
	if err != nil {
		return nil, wrapErr("failed to retire replaced accounts", err)
	}
	replaced, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, wrapErr("failed to read replaced accounts", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO broker_accounts (
			id, user_id, account_name, broker_name, api_key, api_secret,
			is_active, is_verified, account_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`,
		b.ID,
		b.UserID,
		b.AccountName,
		b.BrokerName,
		b.Credentials.APIKey,
		b.Credentials.APISecret,
		b.IsActive,
		b.IsVerified,
		b.AccountStatus,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, wrapErr("failed to create broker account", err)
	}

	if len(replaced) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE followers
			SET master_broker_account_id = $1, updated_at = NOW()
			WHERE master_broker_account_id = ANY($2)
		`, b.ID, replaced)
		if err != nil {
			return nil, wrapErr("failed to move followers", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("failed to commit link", err)
	}
	return replaced, nil
}

func (r *BrokerAccountRepositoryImpl) list(ctx context.Context, what, query string, args ...any) ([]*domain.BrokerAccount, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("failed to query "+what, err)
	}
	defer rows.Close()

	var accounts []*domain.BrokerAccount
	for rows.Next() {
		b, err := scanBrokerAccount(rows)
		if err != nil {
			return nil, wrapErr("failed to scan broker account", err)
		}
		accounts = append(accounts, b)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("error iterating "+what, err)
	}
	return accounts, nil
}
