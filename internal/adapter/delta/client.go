package delta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"copytrade/internal/domain"
	"copytrade/internal/utils"
)

const (
	defaultUserAgent = "copytrade/1.0"
	maxResponseBytes = 4 << 20
)

// Client implements domain.ExchangeClient against the Delta Exchange REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
	userAgent  string
	now        func() time.Time

	// exchange clock minus local clock, learned from expired_signature responses
	clockOffset atomic.Int64
}

// Option configures a Client
type Option func(*Client)

// WithMaxRetries bounds how many times a read-only request is retried on network errors
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryBackoff sets the base and cap of the retry backoff
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.retryBase = base
		c.retryMax = max
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the time source used for signing
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a new Delta Exchange client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
		retryBase:  500 * time.Millisecond,
		retryMax:   5 * time.Second,
		userAgent:  defaultUserAgent,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domain.ExchangeClient = (*Client)(nil)

// GetPositions lists open margined positions
func (c *Client) GetPositions(ctx context.Context, creds domain.Credentials) ([]domain.Position, error) {
	var wire []wirePosition
	if err := c.do(ctx, &creds, http.MethodGet, "/v2/positions/margined", nil, nil, &wire); err != nil {
		return nil, err
	}

	now := c.now()
	positions := make([]domain.Position, 0, len(wire))
	for _, w := range wire {
		p := w.toDomain()
		if p.Symbol == "" {
			return nil, malformed("get positions", fmt.Sprintf("position for product %d has no symbol", p.ProductID))
		}
		p.ObservedAt = now
		positions = append(positions, p)
	}
	return positions, nil
}

// GetPosition fetches the live position for one product
func (c *Client) GetPosition(ctx context.Context, creds domain.Credentials, productID int64) (*domain.Position, error) {
	query := url.Values{}
	query.Set("product_id", strconv.FormatInt(productID, 10))

	var wire wirePosition
	if err := c.do(ctx, &creds, http.MethodGet, "/v2/positions", query, nil, &wire); err != nil {
		return nil, err
	}

	p := wire.toDomain()
	if p.ProductID == 0 {
		p.ProductID = productID
	}
	p.ObservedAt = c.now()
	return &p, nil
}

// GetFills lists the most recent fills
func (c *Client) GetFills(ctx context.Context, creds domain.Credentials, limit int) ([]domain.Fill, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{}
		query.Set("page_size", strconv.Itoa(limit))
	}

	var wire []wireFill
	if err := c.do(ctx, &creds, http.MethodGet, "/v2/fills", query, nil, &wire); err != nil {
		return nil, err
	}

	fills := make([]domain.Fill, 0, len(wire))
	for _, w := range wire {
		f, err := w.toDomain()
		if err != nil {
			return nil, malformed("get fills", err.Error())
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// GetOpenOrders lists resting orders, filtered to productID when it is nonzero
func (c *Client) GetOpenOrders(ctx context.Context, creds domain.Credentials, productID int64) ([]domain.Order, error) {
	query := url.Values{}
	query.Set("state", "open")

	var wire []wireOrder
	if err := c.do(ctx, &creds, http.MethodGet, "/v2/orders", query, nil, &wire); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(wire))
	for _, w := range wire {
		if productID != 0 && w.ProductID != productID {
			continue
		}
		orders = append(orders, w.toDomain())
	}
	return orders, nil
}

// PlaceOrder submits a market order
func (c *Client) PlaceOrder(ctx context.Context, creds domain.Credentials, req domain.OrderRequest) (*domain.OrderResult, error) {
	if req.Size <= 0 {
		return nil, fmt.Errorf("order size must be positive, got %f", req.Size)
	}
	body := orderBody{
		ProductSymbol: req.Symbol,
		ProductID:     req.ProductID,
		Size:          formatSize(req.Size),
		Side:          req.Side,
		OrderType:     "market_order",
		ReduceOnly:    req.ReduceOnly,
		ClientOrderID: req.ClientID,
	}

	var wire wireOrder
	if err := c.do(ctx, &creds, http.MethodPost, "/v2/orders", nil, body, &wire); err != nil {
		return nil, err
	}

	symbol := wire.ProductSymbol
	if symbol == "" {
		symbol = req.Symbol
	}
	side, ok := domain.ParseSide(wire.Side)
	if !ok {
		side = req.Side
	}
	return &domain.OrderResult{
		OrderID:          wire.ID,
		Status:           wire.State,
		Symbol:           symbol,
		Side:             side,
		Size:             wire.Size.Float64(),
		AverageFillPrice: wire.AverageFillPrice.Float64(),
	}, nil
}

// CancelOrder cancels one resting order
func (c *Client) CancelOrder(ctx context.Context, creds domain.Credentials, orderID, productID int64) error {
	body := cancelBody{ID: orderID, ProductID: productID}
	return c.do(ctx, &creds, http.MethodDelete, "/v2/orders", nil, body, nil)
}

// GetMarkPrice reads the public ticker for a symbol
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var wire wireTicker
	err := c.do(ctx, nil, http.MethodGet, "/v2/tickers/"+url.PathEscape(symbol), nil, nil, &wire)
	if err != nil {
		var exErr *domain.ExchangeError
		if errors.As(err, &exErr) && exErr.HTTPStatus == http.StatusNotFound {
			exErr.Kind = domain.ErrInvalidSymbol
		}
		return 0, err
	}

	price := wire.MarkPrice.Float64()
	if price <= 0 {
		price = wire.Close.Float64()
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: no mark price for %s", domain.ErrPricing, symbol)
	}
	return price, nil
}

// do sends one request and decodes the envelope's result into out.
// GETs are retried on network errors; every attempt is signed afresh.
func (c *Client) do(ctx context.Context, creds *domain.Credentials, method, path string, query url.Values, body any, out any) error {
	op := method + " " + path

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet && c.maxRetries > 0 {
		retries = c.maxRetries
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(utils.NewBackOff(c.retryBase, c.retryMax, 0), uint64(retries)), ctx)

	resynced := false
	attempt := func() error {
		apiErr, err := c.send(ctx, creds, method, path, query, payload, out)
		if err == nil {
			return nil
		}

		// expired_signature requests are rejected before execution; resend once on the exchange clock
		if !resynced && apiErr != nil && apiErr.Code == codeExpiredSignature {
			if serverTime, ok := apiErr.serverTime(); ok {
				resynced = true
				c.clockOffset.Store(time.Unix(serverTime, 0).Sub(c.now()).Nanoseconds())
				logrus.WithField("offset", time.Duration(c.clockOffset.Load())).Warn("[WARN] Adjusted exchange clock offset")
				if _, err = c.send(ctx, creds, method, path, query, payload, out); err == nil {
					return nil
				}
			}
		}

		if !domain.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(attempt, policy, func(err error, delay time.Duration) {
		logrus.WithFields(logrus.Fields{
			"op":    op,
			"delay": delay,
		}).Warnf("[WARN] Retrying exchange request: %v", err)
	})
}

// send performs a single signed round trip
func (c *Client) send(ctx context.Context, creds *domain.Credentials, method, path string, query url.Values, payload []byte, out any) (*apiError, error) {
	op := method + " " + path

	rawQuery := ""
	if len(query) > 0 {
		rawQuery = "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+rawQuery, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if creds != nil {
		ts := c.now().Add(time.Duration(c.clockOffset.Load()))
		timestamp, signature := Sign(creds.APISecret, method, path, rawQuery, payload, ts)
		req.Header.Set("api-key", creds.APIKey)
		req.Header.Set("timestamp", timestamp)
		req.Header.Set("signature", signature)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && !env.Success) {
		code, message := "", truncate(string(raw), 200)
		if decodeErr == nil && env.Error != nil {
			code = env.Error.Code
			if env.Error.Message != "" {
				message = env.Error.Message
			}
		}
		return env.Error, classify(op, resp.StatusCode, code, message)
	}
	if decodeErr != nil {
		return nil, malformed(op, decodeErr.Error())
	}

	if out == nil {
		return nil, nil
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, malformed(op, "missing result")
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return nil, malformed(op, err.Error())
	}
	return nil, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
