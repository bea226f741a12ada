package http

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"copytrade/internal/delivery/http/dto"
	"copytrade/internal/domain"
	"copytrade/internal/middleware"
)

const maxCopyTradeLimit = 500

// CopyTradeHandler handles the copy trigger and history requests
type CopyTradeHandler struct {
	copier        domain.CopyTradingService
	brokerRepo    domain.BrokerAccountRepository
	followerRepo  domain.FollowerRepository
	copyTradeRepo domain.CopyTradeRepository
	tickTimeout   time.Duration
}

// NewCopyTradeHandler creates a new CopyTradeHandler
func NewCopyTradeHandler(
	copier domain.CopyTradingService,
	brokerRepo domain.BrokerAccountRepository,
	followerRepo domain.FollowerRepository,
	copyTradeRepo domain.CopyTradeRepository,
	tickTimeout time.Duration,
) *CopyTradeHandler {
	if tickTimeout <= 0 {
		tickTimeout = 30 * time.Second
	}
	return &CopyTradeHandler{
		copier:        copier,
		brokerRepo:    brokerRepo,
		followerRepo:  followerRepo,
		copyTradeRepo: copyTradeRepo,
		tickTimeout:   tickTimeout,
	}
}

// Tick runs one monitor tick for a broker account and returns its summary
// POST /api/monitor/tick
func (h *CopyTradeHandler) Tick(c echo.Context) error {
	var req dto.TickRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}
	brokerID, ok := parseUUIDParam(req.BrokerID)
	if !ok {
		return BadRequestResponse(c, "broker_id is required")
	}

	ctx, cancel := h.copyContext(c)
	defer cancel()

	if _, err := loadOwnedBroker(ctx, c, h.brokerRepo, brokerID); err != nil {
		return DomainErrorResponse(c, "Broker account not found", err)
	}

	summary, err := h.copier.RunTick(ctx, brokerID)
	if err != nil {
		logrus.WithError(err).WithField("broker_id", brokerID).Error("ERROR: Manual tick failed")
		return DomainErrorResponse(c, "Tick failed", err)
	}

	return SuccessResponse(c, summary)
}

// CopyTrade copies one supplied trade to the broker's active followers
// POST /api/copy-trade
func (h *CopyTradeHandler) CopyTrade(c echo.Context) error {
	var req dto.CopyTradeRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}
	brokerID, ok := parseUUIDParam(req.BrokerID)
	if !ok {
		return BadRequestResponse(c, "broker_id is required")
	}

	td := req.TradeData
	side, ok := domain.ParseSide(td.Side)
	if !ok {
		return BadRequestResponse(c, "trade_data.side must be buy or sell")
	}
	if strings.TrimSpace(td.Symbol) == "" || td.Size <= 0 {
		return BadRequestResponse(c, "trade_data needs a symbol and a positive size")
	}

	ctx, cancel := h.copyContext(c)
	defer cancel()

	if _, err := loadOwnedBroker(ctx, c, h.brokerRepo, brokerID); err != nil {
		return DomainErrorResponse(c, "Broker account not found", err)
	}

	event := domain.TradeEvent{
		Symbol:    strings.ToUpper(strings.TrimSpace(td.Symbol)),
		ProductID: td.ProductID,
		Side:      side,
		Size:      td.Size,
		Price:     td.Price,
		Source:    domain.SourceManual,
	}
	if td.OrderID != "" {
		event.MasterTradeID = "manual_" + td.OrderID
	}

	summary, err := h.copier.ProcessTrade(ctx, brokerID, event, req.TestMode)
	if err != nil {
		return DomainErrorResponse(c, "Copy failed", err)
	}

	return SuccessResponse(c, summary)
}

// copyContext bounds a copy run by the tick timeout but not by the request,
// so a client hanging up cannot abort orders between placement and recording
func (h *CopyTradeHandler) copyContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.tickTimeout)
}

// List returns copy trade history for a follower or broker the caller can see
// GET /api/copy-trades?follower_id=&broker_id=&status=&limit=
func (h *CopyTradeHandler) List(c echo.Context) error {
	filter := domain.CopyTradeFilter{Status: c.QueryParam("status")}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return BadRequestResponse(c, "Invalid limit")
		}
		filter.Limit = min(limit, maxCopyTradeLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw := c.QueryParam("broker_id"); raw != "" {
		id, ok := parseUUIDParam(raw)
		if !ok {
			return BadRequestResponse(c, "Invalid broker_id")
		}
		if _, err := loadOwnedBroker(ctx, c, h.brokerRepo, id); err != nil {
			return DomainErrorResponse(c, "Broker account not found", err)
		}
		filter.BrokerID = &id
	}

	if raw := c.QueryParam("follower_id"); raw != "" {
		id, ok := parseUUIDParam(raw)
		if !ok {
			return BadRequestResponse(c, "Invalid follower_id")
		}
		f, err := h.followerRepo.GetByID(ctx, id)
		if err != nil {
			return DomainErrorResponse(c, "Follower not found", err)
		}
		// a broker filter already proved access to the master's rows
		if filter.BrokerID == nil && !canAccess(c, f.UserID) {
			return NotFoundResponse(c, "Follower not found")
		}
		filter.FollowerID = &id
	}

	if filter.BrokerID == nil && filter.FollowerID == nil && !middleware.IsAdmin(c) {
		return BadRequestResponse(c, "broker_id or follower_id is required")
	}

	trades, err := h.copyTradeRepo.List(ctx, filter)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to fetch copy trades", err)
	}
	if trades == nil {
		trades = []*domain.CopyTrade{}
	}

	return SuccessResponse(c, map[string]interface{}{
		"copy_trades": trades,
		"count":       len(trades),
	})
}
