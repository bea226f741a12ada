package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"copytrade/internal/domain"
)

const pgForeignKeyViolation = "23503"

// wrapErr maps driver errors onto the domain's persistence errors
func wrapErr(msg string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%s: %w: %w (%s)", msg, domain.ErrPersistence, domain.ErrForeignKeyViolation, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrPersistence, err)
}
