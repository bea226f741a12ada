package http

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"copytrade/internal/domain"
	"copytrade/internal/middleware"
)

// loadOwnedBroker fetches a broker account the caller may act on.
// Accounts owned by someone else look missing unless the caller is an admin.
func loadOwnedBroker(ctx context.Context, c echo.Context, repo domain.BrokerAccountRepository, id uuid.UUID) (*domain.BrokerAccount, error) {
	b, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(c, b.UserID) {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func canAccess(c echo.Context, owner uuid.UUID) bool {
	if middleware.IsAdmin(c) {
		return true
	}
	userID, err := middleware.GetUserID(c)
	return err == nil && userID == owner
}

func parseUUIDParam(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
