package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"copytrade/internal/domain"
)

// MockStore holds in-memory repositories sharing one call log
type MockStore struct {
	mu sync.RWMutex

	Users      map[uuid.UUID]*domain.User
	Brokers    map[uuid.UUID]*domain.BrokerAccount
	Followers  map[uuid.UUID]*domain.Follower
	CopyTrades []*domain.CopyTrade

	// Call tracking for assertions
	Calls map[string]int

	// ErrorOnNext fails the next call of the named method once
	ErrorOnNext map[string]error
}

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{
		Users:       make(map[uuid.UUID]*domain.User),
		Brokers:     make(map[uuid.UUID]*domain.BrokerAccount),
		Followers:   make(map[uuid.UUID]*domain.Follower),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockStore) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

// FailNext makes the next call of method return err
func (m *MockStore) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorOnNext[method] = err
}

// CallCount returns how often method was called
func (m *MockStore) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[method]
}

// AddUser stores a user
func (m *MockStore) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[u.ID] = u
}

// AddBroker stores a broker account
func (m *MockStore) AddBroker(b *domain.BrokerAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Brokers[b.ID] = b
}

// AddFollower stores a follower
func (m *MockStore) AddFollower(f *domain.Follower) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Followers[f.ID] = f
}

// TradesFor returns recorded rows for a follower
func (m *MockStore) TradesFor(followerID uuid.UUID) []*domain.CopyTrade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.CopyTrade
	for _, t := range m.CopyTrades {
		if t.FollowerID == followerID {
			out = append(out, t)
		}
	}
	return out
}

// BrokerRepo returns the broker account view of the store
func (m *MockStore) BrokerRepo() domain.BrokerAccountRepository { return brokerRepo{m} }

// FollowerRepo returns the follower view of the store
func (m *MockStore) FollowerRepo() domain.FollowerRepository { return followerRepo{m} }

// CopyTradeRepo returns the copy trade view of the store
func (m *MockStore) CopyTradeRepo() domain.CopyTradeRepository { return copyTradeRepo{m} }

// UserRepo returns the user view of the store
func (m *MockStore) UserRepo() domain.UserRepository { return userRepo{m} }

type brokerRepo struct{ m *MockStore }

func (r brokerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BrokerAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Broker.GetByID"); err != nil {
		return nil, err
	}
	b, ok := r.m.Brokers[id]
	if !ok {
		return nil, fmt.Errorf("broker account %s: %w", id, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (r brokerRepo) GetActive(ctx context.Context) ([]*domain.BrokerAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Broker.GetActive"); err != nil {
		return nil, err
	}
	var out []*domain.BrokerAccount
	for _, b := range r.m.Brokers {
		if b.IsActive {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r brokerRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.BrokerAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Broker.GetByUserID"); err != nil {
		return nil, err
	}
	var out []*domain.BrokerAccount
	for _, b := range r.m.Brokers {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r brokerRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Broker.Deactivate"); err != nil {
		return err
	}
	b, ok := r.m.Brokers[id]
	if !ok {
		return fmt.Errorf("broker account %s: %w", id, domain.ErrNotFound)
	}
	b.IsActive = false
	b.AccountStatus = domain.AccountStatusInactive
	for _, f := range r.m.Followers {
		if f.MasterBrokerAccountID == id && f.AccountStatus == domain.AccountStatusActive {
			f.AccountStatus = domain.AccountStatusPaused
		}
	}
	return nil
}

func (r brokerRepo) Link(ctx context.Context, account *domain.BrokerAccount) ([]uuid.UUID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Broker.Link"); err != nil {
		return nil, err
	}
	if _, ok := r.m.Users[account.UserID]; !ok {
		return nil, fmt.Errorf("%w: %w: user %s", domain.ErrPersistence, domain.ErrForeignKeyViolation, account.UserID)
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.BrokerName == "" {
		account.BrokerName = "delta"
	}
	account.IsActive = true
	account.AccountStatus = domain.AccountStatusActive

	var replaced []uuid.UUID
	for _, b := range r.m.Brokers {
		if b.UserID == account.UserID && b.AccountName == account.AccountName && b.IsActive {
			b.IsActive = false
			b.AccountStatus = domain.AccountStatusInactive
			replaced = append(replaced, b.ID)
		}
	}
	for _, f := range r.m.Followers {
		for _, id := range replaced {
			if f.MasterBrokerAccountID == id {
				f.MasterBrokerAccountID = account.ID
			}
		}
	}

	now := time.Now()
	account.CreatedAt, account.UpdatedAt = now, now
	cp := *account
	r.m.Brokers[account.ID] = &cp
	return replaced, nil
}

type followerRepo struct{ m *MockStore }

func (r followerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Follower, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Follower.GetByID"); err != nil {
		return nil, err
	}
	f, ok := r.m.Followers[id]
	if !ok {
		return nil, fmt.Errorf("follower %s: %w", id, domain.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (r followerRepo) GetActiveByBroker(ctx context.Context, brokerID uuid.UUID) ([]*domain.Follower, error) {
	return r.list("Follower.GetActiveByBroker", func(f *domain.Follower) bool {
		return f.MasterBrokerAccountID == brokerID && f.IsActive()
	})
}

func (r followerRepo) GetByBroker(ctx context.Context, brokerID uuid.UUID) ([]*domain.Follower, error) {
	return r.list("Follower.GetByBroker", func(f *domain.Follower) bool {
		return f.MasterBrokerAccountID == brokerID
	})
}

func (r followerRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Follower, error) {
	return r.list("Follower.GetByUserID", func(f *domain.Follower) bool {
		return f.UserID == userID
	})
}

func (r followerRepo) Create(ctx context.Context, f *domain.Follower) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Follower.Create"); err != nil {
		return err
	}
	if _, ok := r.m.Brokers[f.MasterBrokerAccountID]; !ok {
		return fmt.Errorf("%w: %w: broker %s", domain.ErrPersistence, domain.ErrForeignKeyViolation, f.MasterBrokerAccountID)
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.AccountStatus == "" {
		f.AccountStatus = domain.AccountStatusActive
	}
	f.CopyConfig.NormalizeSymbols()
	now := time.Now()
	f.CreatedAt, f.UpdatedAt = now, now
	cp := *f
	r.m.Followers[f.ID] = &cp
	return nil
}

func (r followerRepo) UpdateCopyConfig(ctx context.Context, id uuid.UUID, cfg domain.CopyConfig) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("Follower.UpdateCopyConfig"); err != nil {
		return err
	}
	f, ok := r.m.Followers[id]
	if !ok {
		return fmt.Errorf("follower %s: %w", id, domain.ErrNotFound)
	}
	cfg.NormalizeSymbols()
	f.CopyConfig = cfg
	f.UpdatedAt = time.Now()
	return nil
}

func (r followerRepo) list(call string, keep func(*domain.Follower) bool) ([]*domain.Follower, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall(call); err != nil {
		return nil, err
	}
	var out []*domain.Follower
	for _, f := range r.m.Followers {
		if keep(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FollowerName < out[j].FollowerName })
	return out, nil
}

type copyTradeRepo struct{ m *MockStore }

func (r copyTradeRepo) Record(ctx context.Context, trade *domain.CopyTrade) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("CopyTrade.Record"); err != nil {
		return false, err
	}
	if _, ok := r.m.Followers[trade.FollowerID]; !ok {
		return false, fmt.Errorf("%w: %w: follower %s", domain.ErrPersistence, domain.ErrForeignKeyViolation, trade.FollowerID)
	}
	for _, t := range r.m.CopyTrades {
		if t.MasterTradeID == trade.MasterTradeID && t.FollowerID == trade.FollowerID {
			return false, nil
		}
	}
	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	now := time.Now()
	trade.CreatedAt, trade.UpdatedAt = now, now
	cp := *trade
	r.m.CopyTrades = append(r.m.CopyTrades, &cp)
	return true, nil
}

func (r copyTradeRepo) Exists(ctx context.Context, masterTradeID string, followerID uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("CopyTrade.Exists"); err != nil {
		return false, err
	}
	for _, t := range r.m.CopyTrades {
		if t.MasterTradeID == masterTradeID && t.FollowerID == followerID {
			return true, nil
		}
	}
	return false, nil
}

func (r copyTradeRepo) MarkExited(ctx context.Context, brokerID, followerID uuid.UUID, symbol string, at time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("CopyTrade.MarkExited"); err != nil {
		return 0, err
	}
	var n int64
	for _, t := range r.m.CopyTrades {
		if t.MasterBrokerID == brokerID && t.FollowerID == followerID &&
			strings.EqualFold(t.OriginalSymbol, symbol) && t.Status == domain.CopyStatusExecuted {
			exit := at
			t.Status = domain.CopyStatusExited
			t.ExitTime = &exit
			t.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (r copyTradeRepo) List(ctx context.Context, filter domain.CopyTradeFilter) ([]*domain.CopyTrade, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("CopyTrade.List"); err != nil {
		return nil, err
	}
	var out []*domain.CopyTrade
	for i := len(r.m.CopyTrades) - 1; i >= 0; i-- {
		t := r.m.CopyTrades[i]
		if filter.BrokerID != nil && t.MasterBrokerID != *filter.BrokerID {
			continue
		}
		if filter.FollowerID != nil && t.FollowerID != *filter.FollowerID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r copyTradeRepo) Stats(ctx context.Context, followerID uuid.UUID) (*domain.FollowerStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("CopyTrade.Stats"); err != nil {
		return nil, err
	}
	stats := &domain.FollowerStats{FollowerID: followerID}
	for _, t := range r.m.CopyTrades {
		if t.FollowerID != followerID {
			continue
		}
		stats.TotalTrades++
		switch t.Status {
		case domain.CopyStatusExecuted, domain.CopyStatusExited:
			stats.SuccessfulTrades++
			stats.TotalVolume += t.CopiedSize * t.CopiedPrice
			if t.Status == domain.CopyStatusExecuted {
				stats.OpenTrades++
			}
		case domain.CopyStatusFailed:
			stats.FailedTrades++
		case domain.CopyStatusSkipped:
			stats.SkippedTrades++
		}
		if stats.LastTradeAt == nil || t.CreatedAt.After(*stats.LastTradeAt) {
			at := t.CreatedAt
			stats.LastTradeAt = &at
		}
	}
	stats.Finalize()
	return stats, nil
}

type userRepo struct{ m *MockStore }

func (r userRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("User.GetByID"); err != nil {
		return nil, err
	}
	u, ok := r.m.Users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.trackCall("User.GetByEmail"); err != nil {
		return nil, err
	}
	for _, u := range r.m.Users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}
