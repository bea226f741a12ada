package infra

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrade/internal/domain"
	"copytrade/internal/mocks"
)

// fakeTicker answers like the copy service: inactive or unknown accounts fail the tick
type fakeTicker struct {
	brokers domain.BrokerAccountRepository

	mu        sync.Mutex
	ticks     map[uuid.UUID]int
	forgotten map[uuid.UUID]int
	fail      error
}

func newFakeTicker(brokers domain.BrokerAccountRepository) *fakeTicker {
	return &fakeTicker{
		brokers:   brokers,
		ticks:     make(map[uuid.UUID]int),
		forgotten: make(map[uuid.UUID]int),
	}
}

func (f *fakeTicker) RunTick(ctx context.Context, brokerID uuid.UUID) (*domain.TickSummary, error) {
	b, err := f.brokers.GetByID(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	if !b.Monitorable() {
		return nil, fmt.Errorf("broker %s: %w", b.AccountName, domain.ErrBrokerInactive)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks[brokerID]++
	if f.fail != nil {
		return nil, f.fail
	}
	return &domain.TickSummary{BrokerID: brokerID}, nil
}

func (f *fakeTicker) ForgetBroker(brokerID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten[brokerID]++
}

func (f *fakeTicker) tickCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks[id]
}

func (f *fakeTicker) forgetCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forgotten[id]
}

func addBroker(store *mocks.MockStore, name string) *domain.BrokerAccount {
	b := &domain.BrokerAccount{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		AccountName: name,
		Credentials: domain.Credentials{APIKey: name + "-key", APISecret: name + "-secret"},
		IsActive:    true,
	}
	store.AddBroker(b)
	return b
}

func fastOptions() MonitorOptions {
	return MonitorOptions{
		PollInterval: 10 * time.Millisecond,
		MaxBackoff:   40 * time.Millisecond,
		TickTimeout:  time.Second,
	}
}

func TestMonitorTicksUntilStopped(t *testing.T) {
	store := mocks.NewMockStore()
	broker := addBroker(store, "master")
	ticker := newFakeTicker(store.BrokerRepo())
	m := NewMonitor(context.Background(), ticker, nil, fastOptions())

	require.NoError(t, m.Start(broker))
	assert.ErrorIs(t, m.Start(broker), ErrLoopExists)

	assert.Eventually(t, func() bool { return ticker.tickCount(broker.ID) >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop(broker.ID))
	assert.False(t, m.IsRunning(broker.ID))
	assert.Equal(t, 1, ticker.forgetCount(broker.ID))
	assert.ErrorIs(t, m.Stop(broker.ID), ErrLoopNotFound)
}

func TestMonitorStopsWhenBrokerDeactivated(t *testing.T) {
	store := mocks.NewMockStore()
	broker := addBroker(store, "master")
	ticker := newFakeTicker(store.BrokerRepo())
	m := NewMonitor(context.Background(), ticker, nil, fastOptions())

	require.NoError(t, m.Start(broker))
	assert.Eventually(t, func() bool { return ticker.tickCount(broker.ID) >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.BrokerRepo().Deactivate(context.Background(), broker.ID))
	m.Nudge(broker.ID)

	assert.Eventually(t, func() bool { return !m.IsRunning(broker.ID) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ticker.forgetCount(broker.ID))
}

func TestMonitorKeepsRunningThroughFailures(t *testing.T) {
	store := mocks.NewMockStore()
	broker := addBroker(store, "master")
	ticker := newFakeTicker(store.BrokerRepo())
	ticker.fail = fmt.Errorf("poll: %w", domain.ErrNetwork)
	m := NewMonitor(context.Background(), ticker, nil, fastOptions())

	require.NoError(t, m.Start(broker))
	defer m.StopAll()

	assert.Eventually(t, func() bool {
		st := m.Status()
		return len(st) == 1 && st[0].Failures >= 2
	}, time.Second, 5*time.Millisecond)
	assert.True(t, m.IsRunning(broker.ID))
	assert.Contains(t, m.Status()[0].LastError, "network")
}

func TestMonitorDelay(t *testing.T) {
	m := NewMonitor(context.Background(), nil, nil, MonitorOptions{
		PollInterval: time.Second,
		MaxBackoff:   8 * time.Second,
	})
	l := m.newLoop(&domain.BrokerAccount{ID: uuid.New(), AccountName: "master"}, func() {})

	assert.Equal(t, time.Second, m.delay(l, nil))

	network := fmt.Errorf("poll: %w", domain.ErrNetwork)
	for _, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second} {
		assert.Equal(t, want, m.delay(l, network))
	}
	assert.Equal(t, 8*time.Second, m.delay(l, fmt.Errorf("tick: %w", domain.ErrAuthentication)))

	// a good tick resets the backoff
	assert.Equal(t, time.Second, m.delay(l, nil))
	assert.Equal(t, time.Second, m.delay(l, network))
}

func TestMonitorDelayJitter(t *testing.T) {
	m := NewMonitor(context.Background(), nil, nil, MonitorOptions{
		PollInterval: time.Second,
		PollJitter:   200 * time.Millisecond,
		MaxBackoff:   8 * time.Second,
	})
	l := m.newLoop(&domain.BrokerAccount{ID: uuid.New()}, func() {})

	for i := 0; i < 50; i++ {
		d := m.delay(l, nil)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

type nudgingStream struct {
	nudge func()
	runs  chan struct{}
}

func (s *nudgingStream) Run(ctx context.Context) error {
	close(s.runs)
	s.nudge()
	<-ctx.Done()
	return nil
}

func TestMonitorStartsStreamPerLoop(t *testing.T) {
	store := mocks.NewMockStore()
	broker := addBroker(store, "master")
	ticker := newFakeTicker(store.BrokerRepo())

	stream := &nudgingStream{runs: make(chan struct{})}
	opts := fastOptions()
	opts.PollInterval = time.Hour
	opts.MaxBackoff = time.Hour
	m := NewMonitor(context.Background(), ticker, func(b *domain.BrokerAccount, nudge func()) StreamRunner {
		stream.nudge = nudge
		return stream
	}, opts)

	require.NoError(t, m.Start(broker))
	defer m.StopAll()

	select {
	case <-stream.runs:
	case <-time.After(time.Second):
		t.Fatal("stream never started")
	}
	// first tick runs immediately; the stream's nudge buys a second one despite the hour-long interval
	assert.Eventually(t, func() bool { return ticker.tickCount(broker.ID) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestMonitorBaseContextCancelStopsLoops(t *testing.T) {
	store := mocks.NewMockStore()
	broker := addBroker(store, "master")
	ticker := newFakeTicker(store.BrokerRepo())

	ctx, cancel := context.WithCancel(context.Background())
	m := NewMonitor(ctx, ticker, nil, fastOptions())
	require.NoError(t, m.Start(broker))

	cancel()
	assert.Eventually(t, func() bool { return len(m.Running()) == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, m.Stop(broker.ID), ErrLoopNotFound)
}

// slowTicker holds each tick open until released, like a follower order still in flight
type slowTicker struct {
	started  chan struct{}
	release  chan struct{}
	finished chan error
}

func (s *slowTicker) RunTick(ctx context.Context, brokerID uuid.UUID) (*domain.TickSummary, error) {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	s.finished <- ctx.Err()
	return &domain.TickSummary{BrokerID: brokerID}, nil
}

func (s *slowTicker) ForgetBroker(uuid.UUID) {}

func TestMonitorStopLetsInFlightTickFinish(t *testing.T) {
	store := mocks.NewMockStore()
	broker := addBroker(store, "master")
	ticker := &slowTicker{
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
		finished: make(chan error, 1),
	}

	cases := map[string]func(m *Monitor, cancelBase context.CancelFunc){
		"stop":        func(m *Monitor, _ context.CancelFunc) { go func() { _ = m.Stop(broker.ID) }() },
		"base cancel": func(_ *Monitor, cancelBase context.CancelFunc) { cancelBase() },
	}
	for name, stop := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			m := NewMonitor(ctx, ticker, nil, fastOptions())
			require.NoError(t, m.Start(broker))

			select {
			case <-ticker.started:
			case <-time.After(time.Second):
				t.Fatal("tick never started")
			}

			stop(m, cancel)
			time.Sleep(20 * time.Millisecond)
			assert.True(t, m.IsRunning(broker.ID), "loop waits for the running tick")

			ticker.release <- struct{}{}
			select {
			case err := <-ticker.finished:
				assert.NoError(t, err, "in-flight tick context must survive the stop")
			case <-time.After(time.Second):
				t.Fatal("tick never finished")
			}

			assert.Eventually(t, func() bool { return !m.IsRunning(broker.ID) }, time.Second, 5*time.Millisecond)
		})
	}
}
