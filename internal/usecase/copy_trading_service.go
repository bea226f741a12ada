package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"copytrade/internal/domain"
	"copytrade/internal/service"
)

// CopyResult status values that never produce a row
const (
	StatusAlreadyCopied = "already_copied"
	StatusBusy          = "busy"
	StatusNoPosition    = "no_position"
	StatusInvalid       = "invalid"
	StatusError         = "error"
)

// SkipSymbolFiltered is the reason given when a follower's symbol filter excludes a trade
const SkipSymbolFiltered = "symbol not in follower filter"

const (
	maxConcurrentFollowers = 8
	publishTimeout         = 10 * time.Second
)

// Options tunes the copy-trading service
type Options struct {
	TradeSource   domain.TradeSource
	FillsPageSize int
}

type brokerPoller struct {
	poller *service.Poller
	apiKey string
}

// deferredCopy is follower work postponed because the follower was busy or persistence was down
type deferredCopy struct {
	followerID uuid.UUID
	trade      *domain.TradeEvent
	close      *domain.CloseEvent
}

// CopyTradingService mirrors master trades onto follower accounts
type CopyTradingService struct {
	brokerRepo    domain.BrokerAccountRepository
	followerRepo  domain.FollowerRepository
	copyTradeRepo domain.CopyTradeRepository
	exchange      domain.ExchangeClient
	prices        domain.MarketPriceService
	publisher     domain.EventPublisher
	sizer         *service.Sizer
	submitter     *service.OrderSubmitter
	opts          Options
	now           func() time.Time

	mu       sync.Mutex
	pollers  map[uuid.UUID]*brokerPoller
	deferred map[uuid.UUID][]deferredCopy
	inFlight map[uuid.UUID]*sync.Mutex
}

var _ domain.CopyTradingService = (*CopyTradingService)(nil)

// NewCopyTradingService creates a new CopyTradingService. publisher may be nil.
func NewCopyTradingService(
	brokerRepo domain.BrokerAccountRepository,
	followerRepo domain.FollowerRepository,
	copyTradeRepo domain.CopyTradeRepository,
	exchange domain.ExchangeClient,
	prices domain.MarketPriceService,
	publisher domain.EventPublisher,
	sizer *service.Sizer,
	opts Options,
) *CopyTradingService {
	if opts.TradeSource == "" {
		opts.TradeSource = domain.SourceFill
	}
	return &CopyTradingService{
		brokerRepo:    brokerRepo,
		followerRepo:  followerRepo,
		copyTradeRepo: copyTradeRepo,
		exchange:      exchange,
		prices:        prices,
		publisher:     publisher,
		sizer:         sizer,
		submitter:     service.NewOrderSubmitter(exchange),
		opts:          opts,
		now:           time.Now,
		pollers:       make(map[uuid.UUID]*brokerPoller),
		deferred:      make(map[uuid.UUID][]deferredCopy),
		inFlight:      make(map[uuid.UUID]*sync.Mutex),
	}
}

// RunTick polls one broker account and copies everything new to its active followers
func (s *CopyTradingService) RunTick(ctx context.Context, brokerID uuid.UUID) (*domain.TickSummary, error) {
	log := logrus.WithField("broker_id", brokerID)

	broker, followers, invalid, err := s.loadAccounts(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	poll, err := s.pollerFor(broker).Poll(ctx, broker.Credentials)
	if err != nil {
		return nil, fmt.Errorf("poll broker %s: %w", broker.AccountName, err)
	}

	summary := s.newSummary(brokerID, followers)
	summary.TotalTradesFound = len(poll.Trades)
	summary.ClosesFound = len(poll.Closes)

	retries := s.takeDeferred(brokerID)
	if len(poll.Trades)+len(poll.Closes)+len(retries) == 0 {
		return summary, nil
	}

	log.WithFields(logrus.Fields{
		"trades":   len(poll.Trades),
		"closes":   len(poll.Closes),
		"deferred": len(retries),
	}).Info("Master activity detected")

	s.reportInvalid(summary, invalid)

	byID := make(map[uuid.UUID]*domain.Follower, len(followers))
	for _, f := range followers {
		byID[f.ID] = f
	}
	for _, d := range retries {
		f, ok := byID[d.followerID]
		if !ok {
			continue
		}
		if d.trade != nil {
			s.addResult(summary, s.copyToFollower(ctx, broker, f, *d.trade, false))
		} else {
			s.addResult(summary, s.closeForFollower(ctx, broker, f, *d.close))
		}
	}

	for _, ev := range poll.Trades {
		s.fanOutTrade(ctx, broker, followers, ev, false, summary)
	}
	for _, ev := range poll.Closes {
		s.fanOutClose(ctx, broker, followers, ev, summary)
	}
	s.publishResults(ctx, summary)

	log.WithFields(logrus.Fields{
		"copied": summary.TradesCopied,
		"closed": summary.PositionsClosed,
	}).Info("[OK] Tick complete")
	return summary, nil
}

// ProcessTrade copies one externally supplied trade to the broker's active followers.
// In test mode rows are recorded with status test and no order is placed.
func (s *CopyTradingService) ProcessTrade(ctx context.Context, brokerID uuid.UUID, event domain.TradeEvent, testMode bool) (*domain.TickSummary, error) {
	if event.Symbol == "" || event.Size <= 0 {
		return nil, fmt.Errorf("trade needs a symbol and a positive size")
	}
	if _, ok := domain.ParseSide(string(event.Side)); !ok {
		return nil, fmt.Errorf("invalid trade side %q", event.Side)
	}

	broker, followers, invalid, err := s.loadAccounts(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	if event.MasterTradeID == "" {
		event.MasterTradeID = "manual_" + uuid.NewString()
	}
	if event.Source == "" {
		event.Source = domain.SourceManual
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	event.BrokerID = brokerID

	summary := s.newSummary(brokerID, followers)
	summary.TotalTradesFound = 1
	s.reportInvalid(summary, invalid)
	s.fanOutTrade(ctx, broker, followers, event, testMode, summary)
	s.publishResults(ctx, summary)
	return summary, nil
}

// ForgetBroker drops poller state and deferred work for an account that stopped being monitored
func (s *CopyTradingService) ForgetBroker(brokerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pollers, brokerID)
	delete(s.deferred, brokerID)
}

func (s *CopyTradingService) loadAccounts(ctx context.Context, brokerID uuid.UUID) (*domain.BrokerAccount, []*domain.Follower, []*domain.Follower, error) {
	broker, err := s.brokerRepo.GetByID(ctx, brokerID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load broker %s: %w", brokerID, err)
	}
	if !broker.Monitorable() {
		return nil, nil, nil, fmt.Errorf("broker %s: %w", broker.AccountName, domain.ErrBrokerInactive)
	}

	all, err := s.followerRepo.GetActiveByBroker(ctx, brokerID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load followers of %s: %w", broker.AccountName, err)
	}

	var valid, invalid []*domain.Follower
	for _, f := range all {
		if err := f.Validate(broker); err != nil {
			logrus.WithError(err).WithField("follower", f.FollowerName).Warn("[WARN] Follower excluded from copying")
			invalid = append(invalid, f)
			continue
		}
		valid = append(valid, f)
	}
	return broker, valid, invalid, nil
}

func (s *CopyTradingService) pollerFor(broker *domain.BrokerAccount) *service.Poller {
	s.mu.Lock()
	defer s.mu.Unlock()

	bp, ok := s.pollers[broker.ID]
	if !ok {
		bp = &brokerPoller{
			poller: service.NewPoller(s.exchange, broker.ID, s.opts.TradeSource, s.opts.FillsPageSize),
			apiKey: broker.Credentials.APIKey,
		}
		s.pollers[broker.ID] = bp
	}
	if bp.apiKey != broker.Credentials.APIKey {
		// rotated credentials may point at another account; rebaseline
		bp.poller.Reset()
		bp.apiKey = broker.Credentials.APIKey
	}
	return bp.poller
}

func (s *CopyTradingService) newSummary(brokerID uuid.UUID, followers []*domain.Follower) *domain.TickSummary {
	return &domain.TickSummary{
		BrokerID:        brokerID,
		ActiveFollowers: len(followers),
		CopyResults:     []domain.CopyResult{},
		Timestamp:       s.now(),
	}
}

func (s *CopyTradingService) reportInvalid(summary *domain.TickSummary, invalid []*domain.Follower) {
	for _, f := range invalid {
		summary.CopyResults = append(summary.CopyResults, domain.CopyResult{
			FollowerID: f.ID,
			Follower:   f.FollowerName,
			Status:     StatusInvalid,
			Error:      domain.ErrInvalidFollower.Error(),
		})
	}
}

func (s *CopyTradingService) fanOutTrade(ctx context.Context, broker *domain.BrokerAccount, followers []*domain.Follower, ev domain.TradeEvent, testMode bool, summary *domain.TickSummary) {
	results := make([]domain.CopyResult, len(followers))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFollowers)
	for i, f := range followers {
		g.Go(func() error {
			results[i] = s.copyToFollower(ctx, broker, f, ev, testMode)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		s.addResult(summary, r)
	}
}

func (s *CopyTradingService) fanOutClose(ctx context.Context, broker *domain.BrokerAccount, followers []*domain.Follower, ev domain.CloseEvent, summary *domain.TickSummary) {
	results := make([]domain.CopyResult, len(followers))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFollowers)
	for i, f := range followers {
		g.Go(func() error {
			results[i] = s.closeForFollower(ctx, broker, f, ev)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		s.addResult(summary, r)
	}
}

func (s *CopyTradingService) addResult(summary *domain.TickSummary, r domain.CopyResult) {
	summary.CopyResults = append(summary.CopyResults, r)
	if r.Action == domain.ActionOpen && (r.Status == domain.CopyStatusExecuted || r.Status == domain.CopyStatusTest) {
		summary.TradesCopied++
	}
	if r.Success && r.Action == domain.ActionClose && r.OrderID != 0 {
		summary.PositionsClosed++
	}
}

// publishResults hands the tick's results to the publisher once every follower order is done.
// It runs on its own deadline, detached from the tick's.
func (s *CopyTradingService) publishResults(ctx context.Context, summary *domain.TickSummary) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, r := range summary.CopyResults {
		if r.Status == StatusInvalid {
			continue
		}
		if err := s.publisher.PublishCopyResult(ctx, summary.BrokerID, r); err != nil {
			logrus.WithError(err).WithField("follower", r.Follower).Warn("[WARN] Failed to publish copy result")
		}
	}
}

// copyToFollower runs idempotence check, sizing, submission and recording for one follower
func (s *CopyTradingService) copyToFollower(ctx context.Context, broker *domain.BrokerAccount, f *domain.Follower, ev domain.TradeEvent, testMode bool) domain.CopyResult {
	result := domain.CopyResult{
		FollowerID:    f.ID,
		Follower:      f.FollowerName,
		MasterTradeID: ev.MasterTradeID,
		Trade:         fmt.Sprintf("%s %s %g", ev.Symbol, ev.Side, ev.Size),
		Action:        domain.ActionOpen,
	}
	log := logrus.WithFields(logrus.Fields{
		"broker":          broker.AccountName,
		"follower":        f.FollowerName,
		"master_trade_id": ev.MasterTradeID,
		"symbol":          ev.Symbol,
	})

	if !f.CopyConfig.Allows(ev.Symbol) {
		result.Success = true
		result.Status = domain.CopyStatusSkipped
		result.Error = SkipSymbolFiltered
		return result
	}

	unlock, ok := s.tryLock(f.ID)
	if !ok {
		s.deferWork(broker.ID, deferredCopy{followerID: f.ID, trade: &ev})
		result.Status = StatusBusy
		result.Error = domain.ErrFollowerBusy.Error()
		log.Info("Follower busy, copy deferred to next tick")
		return result
	}
	defer unlock()

	exists, err := s.existsWithRetry(ctx, ev.MasterTradeID, f.ID)
	if err != nil {
		s.deferWork(broker.ID, deferredCopy{followerID: f.ID, trade: &ev})
		result.Status = StatusError
		result.Error = err.Error()
		log.WithError(err).Error("ERROR: Idempotence check failed, copy deferred")
		return result
	}
	if exists {
		result.Success = true
		result.Status = StatusAlreadyCopied
		return result
	}

	row := &domain.CopyTrade{
		MasterTradeID:  ev.MasterTradeID,
		MasterBrokerID: broker.ID,
		FollowerID:     f.ID,
		UserID:         f.UserID,
		OriginalSymbol: ev.Symbol,
		OriginalSide:   ev.Side,
		OriginalSize:   ev.Size,
		OriginalPrice:  ev.Price,
		EntryTime:      ev.OccurredAt,
	}

	price := ev.Price
	if f.CopyConfig.Mode == domain.CopyModeFixedAmount && s.prices != nil {
		if mark, err := s.prices.MarkPrice(ctx, ev.Symbol); err == nil {
			price = mark
		} else {
			log.WithError(err).Warn("[WARN] Mark price unavailable, using master fill price")
		}
	}

	decision, err := s.sizer.Size(f.CopyConfig, ev.Side, ev.Size, price)
	result.Side = decision.Side
	row.CopiedSide = decision.Side
	if err != nil {
		log.WithError(err).Warn("[WARN] Sizing failed, trade skipped")
		return s.finish(ctx, log, row, result, domain.CopyStatusSkipped, err)
	}
	if decision.Skip {
		log.WithField("reason", decision.SkipReason).Info("Copy skipped")
		return s.finish(ctx, log, row, result, domain.CopyStatusSkipped, errors.New(decision.SkipReason))
	}
	row.CopiedSize = decision.Size
	row.CopiedPrice = price
	result.CopySize = decision.Size

	if testMode {
		return s.finish(ctx, log, row, result, domain.CopyStatusTest, nil)
	}

	order, err := s.submitter.Open(ctx, f, ev.Symbol, decision.Side, decision.Size)
	if err != nil {
		log.WithError(err).Error("ERROR: Follower order failed")
		return s.finish(ctx, log, row, result, domain.CopyStatusFailed, err)
	}

	orderID := fmt.Sprintf("%d", order.OrderID)
	row.FollowerOrderID = &orderID
	if order.AverageFillPrice > 0 {
		row.CopiedPrice = order.AverageFillPrice
	}
	result.OrderID = order.OrderID
	log.WithFields(logrus.Fields{
		"side":     decision.Side,
		"size":     decision.Size,
		"order_id": order.OrderID,
	}).Info("[OK] Trade copied")
	return s.finish(ctx, log, row, result, domain.CopyStatusExecuted, nil)
}

// finish records the row and fills in the result. A failed record never undoes the order.
func (s *CopyTradingService) finish(ctx context.Context, log *logrus.Entry, row *domain.CopyTrade, result domain.CopyResult, status string, cause error) domain.CopyResult {
	row.Status = status
	result.Status = status
	result.Success = status == domain.CopyStatusExecuted || status == domain.CopyStatusTest || status == domain.CopyStatusSkipped
	if cause != nil {
		msg := cause.Error()
		row.ErrorMessage = &msg
		if status == domain.CopyStatusFailed {
			result.Error = domain.ErrorKind(cause) + ": " + msg
		} else {
			result.Error = msg
		}
	}

	if err := s.recordWithRetry(ctx, row); err != nil {
		log.WithError(err).WithField("status", status).Error("ERROR: Failed to record copy trade")
		result.Success = false
		result.Unrecorded = true
		if result.Error == "" {
			result.Error = "not recorded: " + err.Error()
		} else {
			result.Error += "; not recorded: " + err.Error()
		}
	}
	return result
}

// closeForFollower flattens the follower's position after the master closed
func (s *CopyTradingService) closeForFollower(ctx context.Context, broker *domain.BrokerAccount, f *domain.Follower, ev domain.CloseEvent) domain.CopyResult {
	result := domain.CopyResult{
		FollowerID: f.ID,
		Follower:   f.FollowerName,
		Trade:      fmt.Sprintf("%s close", ev.Symbol),
		Action:     domain.ActionClose,
	}
	log := logrus.WithFields(logrus.Fields{
		"broker":   broker.AccountName,
		"follower": f.FollowerName,
		"symbol":   ev.Symbol,
	})

	if !f.CopyConfig.CopyPositionClose {
		result.Success = true
		result.Status = domain.CopyStatusSkipped
		result.Error = "position close copying disabled"
		return result
	}

	unlock, ok := s.tryLock(f.ID)
	if !ok {
		s.deferWork(broker.ID, deferredCopy{followerID: f.ID, close: &ev})
		result.Status = StatusBusy
		result.Error = domain.ErrFollowerBusy.Error()
		return result
	}
	defer unlock()

	order, err := s.submitter.Close(ctx, f, ev.Symbol)
	if err != nil {
		log.WithError(err).Error("ERROR: Follower close failed")
		result.Status = domain.CopyStatusFailed
		result.Error = domain.ErrorKind(err) + ": " + err.Error()
		return result
	}

	result.Success = true
	if order == nil {
		result.Status = StatusNoPosition
	} else {
		result.Status = domain.CopyStatusExecuted
		result.OrderID = order.OrderID
		result.Side = order.Side
		result.CopySize = order.Size
	}

	if _, err := s.copyTradeRepo.MarkExited(ctx, broker.ID, f.ID, ev.Symbol, s.now()); err != nil {
		log.WithError(err).Error("ERROR: Failed to mark copy trades exited")
	}
	return result
}

func (s *CopyTradingService) existsWithRetry(ctx context.Context, masterTradeID string, followerID uuid.UUID) (bool, error) {
	exists, err := s.copyTradeRepo.Exists(ctx, masterTradeID, followerID)
	if err == nil {
		return exists, nil
	}
	return s.copyTradeRepo.Exists(ctx, masterTradeID, followerID)
}

func (s *CopyTradingService) recordWithRetry(ctx context.Context, row *domain.CopyTrade) error {
	_, err := s.copyTradeRepo.Record(ctx, row)
	if err == nil || errors.Is(err, domain.ErrForeignKeyViolation) {
		return err
	}
	_, err = s.copyTradeRepo.Record(ctx, row)
	return err
}

// tryLock claims the follower for one operation; ok is false when another is in flight
func (s *CopyTradingService) tryLock(followerID uuid.UUID) (unlock func(), ok bool) {
	s.mu.Lock()
	m, exists := s.inFlight[followerID]
	if !exists {
		m = &sync.Mutex{}
		s.inFlight[followerID] = m
	}
	s.mu.Unlock()

	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}

func (s *CopyTradingService) deferWork(brokerID uuid.UUID, d deferredCopy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred[brokerID] = append(s.deferred[brokerID], d)
}

func (s *CopyTradingService) takeDeferred(brokerID uuid.UUID) []deferredCopy {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deferred[brokerID]
	delete(s.deferred, brokerID)
	return d
}
