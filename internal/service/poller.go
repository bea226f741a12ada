package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"copytrade/internal/domain"
)

// PollResult is what changed on the master account since the last successful poll
type PollResult struct {
	Trades   []domain.TradeEvent
	Closes   []domain.CloseEvent
	Baseline bool
}

type snapshot struct {
	baselineAt time.Time
	positions  map[string]domain.Position
	seenFills  map[int64]struct{}
}

// Poller detects new master trades and closed master positions for one broker account.
// Its snapshot only advances after a fully successful fetch.
type Poller struct {
	exchange      domain.ExchangeClient
	brokerID      uuid.UUID
	source        domain.TradeSource
	fillsPageSize int
	now           func() time.Time

	mu   sync.Mutex
	last *snapshot
}

// NewPoller creates a poller. source is SourceFill or SourcePosition.
func NewPoller(exchange domain.ExchangeClient, brokerID uuid.UUID, source domain.TradeSource, fillsPageSize int) *Poller {
	if source != domain.SourcePosition {
		source = domain.SourceFill
	}
	return &Poller{
		exchange:      exchange,
		brokerID:      brokerID,
		source:        source,
		fillsPageSize: fillsPageSize,
		now:           time.Now,
	}
}

// Poll fetches master state and diffs it against the previous snapshot.
// The first successful poll is a baseline and emits nothing.
func (p *Poller) Poll(ctx context.Context, creds domain.Credentials) (*PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logrus.WithField("broker_id", p.brokerID)
	now := p.now()

	listed, err := p.exchange.GetPositions(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch master positions: %w", err)
	}

	var fills []domain.Fill
	if p.source == domain.SourceFill {
		fills, err = p.exchange.GetFills(ctx, creds, p.fillsPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch master fills: %w", err)
		}
	}

	current := make(map[string]domain.Position, len(listed))
	explicitZero := make(map[string]domain.Position)
	for _, pos := range listed {
		if pos.IsOpen() {
			current[pos.Symbol] = pos
		} else {
			explicitZero[pos.Symbol] = pos
		}
	}

	next := &snapshot{
		positions: current,
		seenFills: make(map[int64]struct{}, len(fills)),
	}
	for _, f := range fills {
		next.seenFills[f.ID] = struct{}{}
	}

	if p.last == nil {
		next.baselineAt = now
		p.last = next
		log.WithField("positions", len(current)).Info("[OK] Master baseline captured")
		return &PollResult{Baseline: true}, nil
	}
	next.baselineAt = p.last.baselineAt

	result := &PollResult{}
	closed := make(map[string]bool)

	for symbol, prev := range p.last.positions {
		if _, still := current[symbol]; still {
			continue
		}
		if _, zero := explicitZero[symbol]; !zero {
			live, err := p.exchange.GetPosition(ctx, creds, prev.ProductID)
			if err != nil {
				// unconfirmed absence is not a close
				log.WithError(err).WithField("symbol", symbol).Warn("[WARN] Could not confirm missing position, keeping previous state")
				current[symbol] = prev
				continue
			}
			if live.IsOpen() {
				if live.Symbol == "" {
					live.Symbol = symbol
				}
				current[symbol] = *live
				continue
			}
		}

		closed[symbol] = true
		result.Closes = append(result.Closes, domain.CloseEvent{
			BrokerID:     p.brokerID,
			Symbol:       symbol,
			ProductID:    prev.ProductID,
			PreviousSize: prev.Size,
			OccurredAt:   now,
		})
	}

	switch p.source {
	case domain.SourceFill:
		result.Trades = p.newFillTrades(fills, closed)
	case domain.SourcePosition:
		result.Trades = p.newPositionTrades(current, now)
	}

	p.last = next
	return result, nil
}

// newFillTrades turns unseen fills into trade events, oldest first.
// Fills that flattened a position closed this tick are handled by the close path instead.
func (p *Poller) newFillTrades(fills []domain.Fill, closed map[string]bool) []domain.TradeEvent {
	var trades []domain.TradeEvent
	for _, f := range fills {
		if _, seen := p.last.seenFills[f.ID]; seen {
			continue
		}
		if !f.CreatedAt.After(p.last.baselineAt) {
			continue
		}
		if closed[f.Symbol] {
			prev := p.last.positions[f.Symbol]
			if f.Side == prev.CloseSide() {
				continue
			}
		}
		trades = append(trades, domain.TradeEvent{
			MasterTradeID: fmt.Sprintf("fill_%d", f.ID),
			BrokerID:      p.brokerID,
			Symbol:        f.Symbol,
			ProductID:     f.ProductID,
			Side:          f.Side,
			Size:          f.Size,
			Price:         f.Price,
			Source:        domain.SourceFill,
			OccurredAt:    f.CreatedAt,
		})
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].OccurredAt.Before(trades[j].OccurredAt)
	})
	return trades
}

// newPositionTrades reports positions that were flat last time and are open now
func (p *Poller) newPositionTrades(current map[string]domain.Position, now time.Time) []domain.TradeEvent {
	var trades []domain.TradeEvent
	for symbol, pos := range current {
		if _, existed := p.last.positions[symbol]; existed {
			continue
		}
		trades = append(trades, domain.TradeEvent{
			MasterTradeID: fmt.Sprintf("position_%d_%d", pos.ProductID, now.Unix()),
			BrokerID:      p.brokerID,
			Symbol:        symbol,
			ProductID:     pos.ProductID,
			Side:          pos.Side(),
			Size:          pos.AbsSize(),
			Price:         pos.EntryPrice,
			Source:        domain.SourcePosition,
			OccurredAt:    now,
		})
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Symbol < trades[j].Symbol })
	return trades
}

// Reset forgets the snapshot so the next poll takes a fresh baseline
func (p *Poller) Reset() {
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
}
