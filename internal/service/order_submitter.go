package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"copytrade/internal/domain"
)

// OrderSubmitter places, closes and cancels orders on follower accounts.
// Every call signs with the follower's own credentials.
type OrderSubmitter struct {
	exchange domain.ExchangeClient
}

// NewOrderSubmitter creates a new OrderSubmitter
func NewOrderSubmitter(exchange domain.ExchangeClient) *OrderSubmitter {
	return &OrderSubmitter{exchange: exchange}
}

// Open places a market order that opens or adds to the follower's position
func (s *OrderSubmitter) Open(ctx context.Context, follower *domain.Follower, symbol string, side domain.Side, size float64) (*domain.OrderResult, error) {
	req := domain.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		ReduceOnly: false,
	}
	res, err := s.exchange.PlaceOrder(ctx, follower.Credentials, req)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s %s %.6f for %s: %w", symbol, side, size, follower.FollowerName, err)
	}
	return res, nil
}

// Close flattens the follower's live position in symbol.
// The size comes from the position queried now, never from what was copied earlier.
// A nil result with no error means there was nothing to close.
func (s *OrderSubmitter) Close(ctx context.Context, follower *domain.Follower, symbol string) (*domain.OrderResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"follower": follower.FollowerName,
		"symbol":   symbol,
	})

	positions, err := s.exchange.GetPositions(ctx, follower.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live positions for %s: %w", follower.FollowerName, err)
	}

	var live *domain.Position
	for i := range positions {
		if strings.EqualFold(positions[i].Symbol, symbol) && positions[i].IsOpen() {
			live = &positions[i]
			break
		}
	}
	if live == nil {
		log.Info("No open follower position to close")
		return nil, nil
	}

	if live.ProductID != 0 {
		s.cancelResting(ctx, follower, live.ProductID, log)
	}

	req := domain.OrderRequest{
		Symbol:     live.Symbol,
		ProductID:  live.ProductID,
		Side:       live.CloseSide(),
		Size:       live.AbsSize(),
		ReduceOnly: true,
	}
	res, err := s.exchange.PlaceOrder(ctx, follower.Credentials, req)
	if err != nil {
		return nil, fmt.Errorf("failed to close %s for %s: %w", symbol, follower.FollowerName, err)
	}

	log.WithFields(logrus.Fields{
		"side": req.Side,
		"size": req.Size,
	}).Info("[OK] Follower position closed")
	return res, nil
}

// Cancel cancels one resting order on the follower's account
func (s *OrderSubmitter) Cancel(ctx context.Context, follower *domain.Follower, orderID, productID int64) error {
	if err := s.exchange.CancelOrder(ctx, follower.Credentials, orderID, productID); err != nil {
		return fmt.Errorf("failed to cancel order %d for %s: %w", orderID, follower.FollowerName, err)
	}
	return nil
}

// cancelResting is best effort; a resting order left behind does not block the close
func (s *OrderSubmitter) cancelResting(ctx context.Context, follower *domain.Follower, productID int64, log *logrus.Entry) {
	orders, err := s.exchange.GetOpenOrders(ctx, follower.Credentials, productID)
	if err != nil {
		log.WithError(err).Warn("[WARN] Could not list resting orders before close")
		return
	}
	for _, o := range orders {
		if err := s.Cancel(ctx, follower, o.ID, productID); err != nil {
			log.WithError(err).WithField("order_id", o.ID).Warn("[WARN] Could not cancel resting order")
		}
	}
}
