package http

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"copytrade/internal/delivery/http/dto"
	"copytrade/internal/domain"
	"copytrade/internal/middleware"
)

// FollowerHandler handles follower requests
type FollowerHandler struct {
	followerRepo  domain.FollowerRepository
	brokerRepo    domain.BrokerAccountRepository
	copyTradeRepo domain.CopyTradeRepository
}

// NewFollowerHandler creates a new FollowerHandler
func NewFollowerHandler(followerRepo domain.FollowerRepository, brokerRepo domain.BrokerAccountRepository, copyTradeRepo domain.CopyTradeRepository) *FollowerHandler {
	return &FollowerHandler{followerRepo: followerRepo, brokerRepo: brokerRepo, copyTradeRepo: copyTradeRepo}
}

// List returns followers of one broker account, or the caller's own followers
// GET /api/followers?broker_id=
func (h *FollowerHandler) List(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var followers []*domain.Follower
	if raw := c.QueryParam("broker_id"); raw != "" {
		brokerID, ok := parseUUIDParam(raw)
		if !ok {
			return BadRequestResponse(c, "Invalid broker_id")
		}
		if _, err := loadOwnedBroker(ctx, c, h.brokerRepo, brokerID); err != nil {
			return DomainErrorResponse(c, "Broker account not found", err)
		}
		followers, err = h.followerRepo.GetByBroker(ctx, brokerID)
	} else {
		followers, err = h.followerRepo.GetByUserID(ctx, userID)
	}
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to fetch followers", err)
	}

	out := make([]dto.FollowerOutput, 0, len(followers))
	for _, f := range followers {
		out = append(out, dto.NewFollowerOutput(f))
	}

	return SuccessResponse(c, map[string]interface{}{
		"followers": out,
		"count":     len(out),
	})
}

// Get returns one follower
// GET /api/followers/:id
func (h *FollowerHandler) Get(c echo.Context) error {
	id, ok := parseUUIDParam(c.Param("id"))
	if !ok {
		return BadRequestResponse(c, "Invalid follower id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	f, err := h.loadVisibleFollower(ctx, c, id)
	if err != nil {
		return DomainErrorResponse(c, "Follower not found", err)
	}

	return SuccessResponse(c, dto.NewFollowerOutput(f))
}

// Create links a follower account to an active master
// POST /api/followers
func (h *FollowerHandler) Create(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	var req dto.CreateFollowerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request body")
	}
	req.FollowerName = strings.TrimSpace(req.FollowerName)
	if req.FollowerName == "" {
		return BadRequestResponse(c, "follower_name is required")
	}
	masterID, ok := parseUUIDParam(req.MasterBrokerAccountID)
	if !ok {
		return BadRequestResponse(c, "Invalid master_broker_account_id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	master, err := h.brokerRepo.GetByID(ctx, masterID)
	if err != nil {
		return DomainErrorResponse(c, "Master account not found", err)
	}
	if !master.IsActive {
		return DomainErrorResponse(c, "Master account is not active", domain.ErrBrokerInactive)
	}

	f := &domain.Follower{
		UserID:                userID,
		FollowerName:          req.FollowerName,
		MasterBrokerAccountID: master.ID,
		Credentials: domain.Credentials{
			APIKey:    strings.TrimSpace(req.APIKey),
			APISecret: strings.TrimSpace(req.APISecret),
		},
		CopyConfig:    req.Settings.Apply(domain.DefaultCopyConfig()),
		AccountStatus: domain.AccountStatusActive,
	}
	if err := f.Validate(master); err != nil {
		return BadRequestResponse(c, err.Error())
	}

	if err := h.followerRepo.Create(ctx, f); err != nil {
		return DomainErrorResponse(c, "Failed to create follower", err)
	}

	logrus.WithFields(logrus.Fields{
		"follower": f.FollowerName,
		"master":   master.AccountName,
	}).Info("[OK] Follower linked")
	return CreatedResponse(c, dto.NewFollowerOutput(f))
}

// UpdateSettings replaces the fields of a follower's copy config present in the body
// PUT /api/followers/:id/settings
func (h *FollowerHandler) UpdateSettings(c echo.Context) error {
	id, ok := parseUUIDParam(c.Param("id"))
	if !ok {
		return BadRequestResponse(c, "Invalid follower id")
	}

	var req dto.UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request body")
	}
	if req.Settings == nil {
		return BadRequestResponse(c, "settings are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	f, err := h.followerRepo.GetByID(ctx, id)
	if err != nil {
		return DomainErrorResponse(c, "Follower not found", err)
	}
	// only the follower's owner changes how it sizes orders
	if !canAccess(c, f.UserID) {
		return NotFoundResponse(c, "Follower not found")
	}

	master, err := h.brokerRepo.GetByID(ctx, f.MasterBrokerAccountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return DomainErrorResponse(c, "Failed to load master account", err)
	}

	updated := *f
	updated.CopyConfig = req.Settings.Apply(f.CopyConfig)
	if err := updated.Validate(master); err != nil {
		return BadRequestResponse(c, err.Error())
	}

	if err := h.followerRepo.UpdateCopyConfig(ctx, id, updated.CopyConfig); err != nil {
		return DomainErrorResponse(c, "Failed to update settings", err)
	}

	logrus.WithField("follower", f.FollowerName).Info("[OK] Follower settings updated")
	return SuccessMessageResponse(c, "Settings updated", dto.NewFollowerOutput(&updated))
}

// Stats summarises a follower's copy history
// GET /api/followers/:id/stats
func (h *FollowerHandler) Stats(c echo.Context) error {
	id, ok := parseUUIDParam(c.Param("id"))
	if !ok {
		return BadRequestResponse(c, "Invalid follower id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.loadVisibleFollower(ctx, c, id); err != nil {
		return DomainErrorResponse(c, "Follower not found", err)
	}

	stats, err := h.copyTradeRepo.Stats(ctx, id)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to fetch follower stats", err)
	}
	return SuccessResponse(c, stats)
}

// loadVisibleFollower lets the follower's owner and the master's owner through
func (h *FollowerHandler) loadVisibleFollower(ctx context.Context, c echo.Context, id uuid.UUID) (*domain.Follower, error) {
	f, err := h.followerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(c, f.UserID) {
		if _, err := loadOwnedBroker(ctx, c, h.brokerRepo, f.MasterBrokerAccountID); err != nil {
			return nil, domain.ErrNotFound
		}
	}
	return f, nil
}
