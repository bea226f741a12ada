package mocks

import (
	"context"
	"fmt"
	"sync"

	"copytrade/internal/domain"
)

// PlacedOrder is one order accepted by MockExchange
type PlacedOrder struct {
	APIKey  string
	Request domain.OrderRequest
	OrderID int64
}

// MockExchange is an in-memory domain.ExchangeClient keyed by API key
type MockExchange struct {
	mu sync.Mutex

	Positions  map[string][]domain.Position
	Unlisted   map[string][]domain.Position // visible to GetPosition only
	Fills      map[string][]domain.Fill
	OpenOrders map[string][]domain.Order
	MarkPrices map[string]float64

	PlacedOrders    []PlacedOrder
	CancelledOrders []int64

	// Call tracking for assertions
	Calls map[string]int

	// ErrorOnNext fails the next call of the named method once
	ErrorOnNext map[string]error

	// OrderErrors fails every PlaceOrder for the given API key
	OrderErrors map[string]error

	nextOrderID int64
}

var _ domain.ExchangeClient = (*MockExchange)(nil)

// NewMockExchange creates an empty mock exchange
func NewMockExchange() *MockExchange {
	return &MockExchange{
		Positions:   make(map[string][]domain.Position),
		Unlisted:    make(map[string][]domain.Position),
		Fills:       make(map[string][]domain.Fill),
		OpenOrders:  make(map[string][]domain.Order),
		MarkPrices:  make(map[string]float64),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
		OrderErrors: make(map[string]error),
		nextOrderID: 1000,
	}
}

func (m *MockExchange) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

// SetPositions replaces the open positions of an account
func (m *MockExchange) SetPositions(apiKey string, positions ...domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Positions[apiKey] = positions
}

// AddFill prepends a fill so the newest comes first, as the exchange returns them
func (m *MockExchange) AddFill(apiKey string, fill domain.Fill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fills[apiKey] = append([]domain.Fill{fill}, m.Fills[apiKey]...)
}

// FailNext makes the next call of method return err
func (m *MockExchange) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorOnNext[method] = err
}

// OrdersFor returns the orders placed with apiKey
func (m *MockExchange) OrdersFor(apiKey string) []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderRequest
	for _, o := range m.PlacedOrders {
		if o.APIKey == apiKey {
			out = append(out, o.Request)
		}
	}
	return out
}

// CallCount returns how often method was called
func (m *MockExchange) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

func (m *MockExchange) GetPositions(ctx context.Context, creds domain.Credentials) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetPositions"); err != nil {
		return nil, err
	}
	return append([]domain.Position(nil), m.Positions[creds.APIKey]...), nil
}

func (m *MockExchange) GetPosition(ctx context.Context, creds domain.Credentials, productID int64) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetPosition"); err != nil {
		return nil, err
	}
	all := append(append([]domain.Position(nil), m.Positions[creds.APIKey]...), m.Unlisted[creds.APIKey]...)
	for _, p := range all {
		if p.ProductID == productID {
			pos := p
			return &pos, nil
		}
	}
	return &domain.Position{ProductID: productID}, nil
}

func (m *MockExchange) GetFills(ctx context.Context, creds domain.Credentials, limit int) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetFills"); err != nil {
		return nil, err
	}
	fills := m.Fills[creds.APIKey]
	if limit > 0 && len(fills) > limit {
		fills = fills[:limit]
	}
	return append([]domain.Fill(nil), fills...), nil
}

func (m *MockExchange) GetOpenOrders(ctx context.Context, creds domain.Credentials, productID int64) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetOpenOrders"); err != nil {
		return nil, err
	}
	var out []domain.Order
	for _, o := range m.OpenOrders[creds.APIKey] {
		if productID == 0 || o.ProductID == productID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, creds domain.Credentials, req domain.OrderRequest) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("PlaceOrder"); err != nil {
		return nil, err
	}
	if err, ok := m.OrderErrors[creds.APIKey]; ok {
		return nil, err
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("mock exchange: order size must be positive, got %f", req.Size)
	}

	m.nextOrderID++
	m.PlacedOrders = append(m.PlacedOrders, PlacedOrder{APIKey: creds.APIKey, Request: req, OrderID: m.nextOrderID})
	return &domain.OrderResult{
		OrderID:          m.nextOrderID,
		Status:           "closed",
		Symbol:           req.Symbol,
		Side:             req.Side,
		Size:             req.Size,
		AverageFillPrice: m.MarkPrices[req.Symbol],
	}, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, creds domain.Credentials, orderID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CancelOrder"); err != nil {
		return err
	}
	m.CancelledOrders = append(m.CancelledOrders, orderID)

	remaining := m.OpenOrders[creds.APIKey][:0]
	for _, o := range m.OpenOrders[creds.APIKey] {
		if o.ID != orderID {
			remaining = append(remaining, o)
		}
	}
	m.OpenOrders[creds.APIKey] = remaining
	return nil
}

func (m *MockExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetMarkPrice"); err != nil {
		return 0, err
	}
	price, ok := m.MarkPrices[symbol]
	if !ok {
		return 0, &domain.ExchangeError{Op: "GET /v2/tickers", Kind: domain.ErrInvalidSymbol, Message: symbol}
	}
	return price, nil
}
