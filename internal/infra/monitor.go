package infra

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"copytrade/internal/domain"
	"copytrade/internal/utils"
)

var (
	ErrLoopExists   = errors.New("monitor: loop already running")
	ErrLoopNotFound = errors.New("monitor: loop not found")
)

// Ticker runs one copy cycle for a broker account
type Ticker interface {
	RunTick(ctx context.Context, brokerID uuid.UUID) (*domain.TickSummary, error)
	ForgetBroker(brokerID uuid.UUID)
}

// StreamRunner pushes account updates until ctx is done
type StreamRunner interface {
	Run(ctx context.Context) error
}

// StreamFactory builds a push stream for an account; nudge wakes its loop early
type StreamFactory func(broker *domain.BrokerAccount, nudge func()) StreamRunner

// MonitorOptions holds the loop timing
type MonitorOptions struct {
	PollInterval time.Duration
	PollJitter   time.Duration
	MaxBackoff   time.Duration
	TickTimeout  time.Duration
}

// LoopStatus is a snapshot of one running loop
type LoopStatus struct {
	BrokerID    uuid.UUID `json:"broker_id"`
	AccountName string    `json:"account_name"`
	StartedAt   time.Time `json:"started_at"`
	LastTickAt  time.Time `json:"last_tick_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Failures    int       `json:"consecutive_failures"`
	Ticks       int64     `json:"ticks"`
}

type loop struct {
	brokerID uuid.UUID
	name     string
	cancel   context.CancelFunc
	done     chan struct{}
	nudge    chan struct{}

	// owned by the run goroutine
	steady backoff.BackOff
	retry  backoff.BackOff

	mu     sync.Mutex
	status LoopStatus
}

func (l *loop) wake() {
	select {
	case l.nudge <- struct{}{}:
	default:
	}
}

func (l *loop) snapshot() LoopStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Monitor runs one polling loop per monitored broker account
type Monitor struct {
	baseCtx context.Context
	ticker  Ticker
	streams StreamFactory
	opts    MonitorOptions

	mu    sync.RWMutex
	loops map[uuid.UUID]*loop
}

// NewMonitor creates a monitor whose loops stop when ctx is cancelled.
// streams may be nil to poll without push updates.
func NewMonitor(ctx context.Context, ticker Ticker, streams StreamFactory, opts MonitorOptions) *Monitor {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxBackoff < opts.PollInterval {
		opts.MaxBackoff = opts.PollInterval
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = 30 * time.Second
	}
	return &Monitor{
		baseCtx: ctx,
		ticker:  ticker,
		streams: streams,
		opts:    opts,
		loops:   make(map[uuid.UUID]*loop),
	}
}

// Start launches the loop for broker
func (m *Monitor) Start(broker *domain.BrokerAccount) error {
	m.mu.Lock()
	if _, exists := m.loops[broker.ID]; exists {
		m.mu.Unlock()
		return ErrLoopExists
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	l := m.newLoop(broker, cancel)
	m.loops[broker.ID] = l
	m.mu.Unlock()

	if m.streams != nil {
		stream := m.streams(broker, l.wake)
		go func() {
			if err := stream.Run(ctx); err != nil {
				logrus.WithError(err).WithField("broker", broker.AccountName).Warn("[WARN] Stream stopped")
			}
		}()
	}

	go m.run(ctx, l)
	logrus.WithField("broker", broker.AccountName).Info("[OK] Monitoring started")
	return nil
}

func (m *Monitor) newLoop(broker *domain.BrokerAccount, cancel context.CancelFunc) *loop {
	jitter := utils.JitterFraction(m.opts.PollInterval, m.opts.PollJitter)
	return &loop{
		brokerID: broker.ID,
		name:     broker.AccountName,
		cancel:   cancel,
		done:     make(chan struct{}),
		nudge:    make(chan struct{}, 1),
		steady:   utils.NewBackOff(m.opts.PollInterval, m.opts.PollInterval, jitter),
		retry:    utils.NewBackOff(m.opts.PollInterval, m.opts.MaxBackoff, jitter),
		status: LoopStatus{
			BrokerID:    broker.ID,
			AccountName: broker.AccountName,
			StartedAt:   time.Now().UTC(),
		},
	}
}

// Stop ends the loop for brokerID after any in-flight tick and waits for it to exit
func (m *Monitor) Stop(brokerID uuid.UUID) error {
	m.mu.RLock()
	l, ok := m.loops[brokerID]
	m.mu.RUnlock()
	if !ok {
		return ErrLoopNotFound
	}

	l.cancel()
	<-l.done
	return nil
}

// StopAll stops every loop and waits for them
func (m *Monitor) StopAll() {
	for _, id := range m.Running() {
		_ = m.Stop(id)
	}
}

// Nudge wakes the loop for brokerID so it ticks without waiting out its interval
func (m *Monitor) Nudge(brokerID uuid.UUID) {
	m.mu.RLock()
	l, ok := m.loops[brokerID]
	m.mu.RUnlock()
	if ok {
		l.wake()
	}
}

// IsRunning reports whether a loop exists for brokerID
func (m *Monitor) IsRunning(brokerID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.loops[brokerID]
	return ok
}

// Running returns the ids of all running loops
func (m *Monitor) Running() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	return ids
}

// Status returns a snapshot of every running loop, ordered by account name
func (m *Monitor) Status() []LoopStatus {
	m.mu.RLock()
	out := make([]LoopStatus, 0, len(m.loops))
	for _, l := range m.loops {
		out = append(out, l.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AccountName < out[j].AccountName })
	return out
}

func (m *Monitor) run(ctx context.Context, l *loop) {
	log := logrus.WithFields(logrus.Fields{"broker_id": l.brokerID, "broker": l.name})
	defer func() {
		m.ticker.ForgetBroker(l.brokerID)
		m.mu.Lock()
		if current, ok := m.loops[l.brokerID]; ok && current == l {
			delete(m.loops, l.brokerID)
		}
		m.mu.Unlock()
		close(l.done)
		log.Info("Monitoring stopped")
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := m.tick(ctx, l)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, domain.ErrBrokerInactive), errors.Is(err, domain.ErrNotFound):
			log.WithError(err).Warn("[WARN] Account no longer monitorable")
			return
		case err != nil:
			failures++
			log.WithError(err).WithField("failures", failures).Error("ERROR: Tick failed")
		default:
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-l.nudge:
		case <-time.After(m.delay(l, err)):
		}
	}
}

// tick runs one copy cycle. Stopping the loop only prevents the next tick: the running
// one keeps its context until TickTimeout so placed orders still get their rows.
func (m *Monitor) tick(ctx context.Context, l *loop) error {
	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.TickTimeout)
	defer cancel()

	_, err := m.ticker.RunTick(tickCtx, l.brokerID)

	l.mu.Lock()
	l.status.LastTickAt = time.Now().UTC()
	l.status.Ticks++
	if err != nil {
		l.status.Failures++
		l.status.LastError = err.Error()
	} else {
		l.status.Failures = 0
		l.status.LastError = ""
	}
	l.mu.Unlock()
	return err
}

// delay is the wait before the next tick; failures back off exponentially and auth failures wait longest
func (m *Monitor) delay(l *loop, err error) time.Duration {
	if err == nil {
		l.retry.Reset()
		return l.steady.NextBackOff()
	}
	if errors.Is(err, domain.ErrAuthentication) {
		return m.opts.MaxBackoff
	}
	return l.retry.NextBackOff()
}
