package http

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"copytrade/internal/delivery/http/dto"
	"copytrade/internal/domain"
	"copytrade/internal/infra"
	"copytrade/internal/middleware"
)

// LoopController is the part of the monitor the API drives
type LoopController interface {
	Start(broker *domain.BrokerAccount) error
	IsRunning(brokerID uuid.UUID) bool
	Stop(brokerID uuid.UUID) error
	Status() []infra.LoopStatus
}

// BrokerHandler handles master account requests
type BrokerHandler struct {
	brokerRepo domain.BrokerAccountRepository
	loops      LoopController
}

// NewBrokerHandler creates a new BrokerHandler
func NewBrokerHandler(brokerRepo domain.BrokerAccountRepository, loops LoopController) *BrokerHandler {
	return &BrokerHandler{brokerRepo: brokerRepo, loops: loops}
}

// List returns the caller's broker accounts; admins may pass scope=all for every active account
// GET /api/brokers
func (h *BrokerHandler) List(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	all := c.QueryParam("scope") == "all"
	if all && !middleware.IsAdmin(c) {
		return ForbiddenResponse(c, "Admin access required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var brokers []*domain.BrokerAccount
	if all {
		brokers, err = h.brokerRepo.GetActive(ctx)
	} else {
		brokers, err = h.brokerRepo.GetByUserID(ctx, userID)
	}
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to fetch broker accounts", err)
	}
	return h.brokerList(c, brokers)
}

// ListActive returns every active broker account
// GET /api/admin/brokers
func (h *BrokerHandler) ListActive(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	brokers, err := h.brokerRepo.GetActive(ctx)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to fetch broker accounts", err)
	}
	return h.brokerList(c, brokers)
}

func (h *BrokerHandler) brokerList(c echo.Context, brokers []*domain.BrokerAccount) error {
	out := make([]dto.BrokerOutput, 0, len(brokers))
	for _, b := range brokers {
		out = append(out, dto.NewBrokerOutput(b, h.loops.IsRunning(b.ID)))
	}

	return SuccessResponse(c, map[string]interface{}{
		"brokers": out,
		"count":   len(out),
	})
}

// Loops reports every running monitor loop
// GET /api/admin/loops
func (h *BrokerHandler) Loops(c echo.Context) error {
	loops := h.loops.Status()
	return SuccessResponse(c, map[string]interface{}{
		"loops": loops,
		"count": len(loops),
	})
}

// Link registers the caller's master account. An active account with the same
// name is retired, its loop stopped and its followers moved to the new account.
// POST /api/masters
func (h *BrokerHandler) Link(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Unauthorized")
	}

	var req dto.LinkBrokerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request body")
	}
	req.Trim()
	if req.AccountName == "" || req.APIKey == "" || req.APISecret == "" {
		return BadRequestResponse(c, "account_name, api_key and api_secret are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	broker := &domain.BrokerAccount{
		UserID:      userID,
		AccountName: req.AccountName,
		BrokerName:  req.BrokerName,
		Credentials: domain.Credentials{APIKey: req.APIKey, APISecret: req.APISecret},
	}
	replaced, err := h.brokerRepo.Link(ctx, broker)
	if err != nil {
		return DomainErrorResponse(c, "Failed to link broker account", err)
	}

	log := logrus.WithField("broker", broker.AccountName)
	for _, id := range replaced {
		if err := h.loops.Stop(id); err != nil && !errors.Is(err, infra.ErrLoopNotFound) {
			log.WithError(err).WithField("replaced", id).Warn("[WARN] Failed to stop replaced monitor loop")
		}
	}
	if err := h.loops.Start(broker); err != nil && !errors.Is(err, infra.ErrLoopExists) {
		log.WithError(err).Warn("[WARN] Failed to start monitor loop")
	}

	ids := make([]string, 0, len(replaced))
	for _, id := range replaced {
		ids = append(ids, id.String())
	}
	log.WithField("replaced", len(replaced)).Info("[OK] Broker account linked")
	return CreatedResponse(c, dto.LinkBrokerResponse{
		Broker:   dto.NewBrokerOutput(broker, h.loops.IsRunning(broker.ID)),
		Replaced: ids,
	})
}

// Deactivate marks a broker account inactive, pauses its followers and stops its loop
// POST /api/brokers/:id/deactivate
func (h *BrokerHandler) Deactivate(c echo.Context) error {
	id, ok := parseUUIDParam(c.Param("id"))
	if !ok {
		return BadRequestResponse(c, "Invalid broker id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	broker, err := loadOwnedBroker(ctx, c, h.brokerRepo, id)
	if err != nil {
		return DomainErrorResponse(c, "Broker account not found", err)
	}

	if err := h.brokerRepo.Deactivate(ctx, id); err != nil {
		return DomainErrorResponse(c, "Failed to deactivate broker account", err)
	}

	// The loop would notice on its next tick; stopping here makes it immediate
	if err := h.loops.Stop(id); err != nil && !errors.Is(err, infra.ErrLoopNotFound) {
		logrus.WithError(err).WithField("broker", broker.AccountName).Warn("[WARN] Failed to stop monitor loop")
	}

	logrus.WithField("broker", broker.AccountName).Info("[OK] Broker account deactivated")
	broker.IsActive = false
	broker.AccountStatus = domain.AccountStatusInactive
	return SuccessMessageResponse(c, "Broker account deactivated", dto.NewBrokerOutput(broker, false))
}
