package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrade/internal/domain"
	"copytrade/internal/mocks"
)

var masterCreds = domain.Credentials{APIKey: "master-key", APISecret: "master-secret"}

func newTestPoller(ex *mocks.MockExchange, source domain.TradeSource) (*Poller, *time.Time) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := NewPoller(ex, uuid.New(), source, 50)
	p.now = func() time.Time { return now }
	return p, &now
}

func btc(size float64) domain.Position {
	return domain.Position{ProductID: 27, Symbol: "BTCUSD", Size: size, EntryPrice: 45000}
}

func TestPollerFirstTickIsBaseline(t *testing.T) {
	ex := mocks.NewMockExchange()
	ex.SetPositions(masterCreds.APIKey, btc(1))
	ex.AddFill(masterCreds.APIKey, domain.Fill{ID: 1, Symbol: "BTCUSD", Side: domain.SideBuy, Size: 1,
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)})

	p, _ := newTestPoller(ex, domain.SourceFill)
	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.True(t, res.Baseline)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Closes)

	res, err = p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.False(t, res.Baseline)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Closes)
}

func TestPollerEmitsNewFillsOldestFirst(t *testing.T) {
	ex := mocks.NewMockExchange()
	p, now := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	ex.AddFill(masterCreds.APIKey, domain.Fill{ID: 10, ProductID: 27, Symbol: "BTCUSD", Side: domain.SideBuy, Size: 1, Price: 45000,
		CreatedAt: now.Add(time.Second)})
	ex.AddFill(masterCreds.APIKey, domain.Fill{ID: 11, ProductID: 27, Symbol: "BTCUSD", Side: domain.SideBuy, Size: 2, Price: 45010,
		CreatedAt: now.Add(2 * time.Second)})
	ex.SetPositions(masterCreds.APIKey, btc(3))

	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, "fill_10", res.Trades[0].MasterTradeID)
	assert.Equal(t, "fill_11", res.Trades[1].MasterTradeID)
	assert.Equal(t, domain.SourceFill, res.Trades[0].Source)
	assert.Equal(t, 45000.0, res.Trades[0].Price)

	res, err = p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "fills are reported once")
}

func TestPollerIgnoresFillsOlderThanBaseline(t *testing.T) {
	ex := mocks.NewMockExchange()
	p, now := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	// late-arriving fill stamped before the baseline
	ex.AddFill(masterCreds.APIKey, domain.Fill{ID: 5, Symbol: "BTCUSD", Side: domain.SideBuy, Size: 1, CreatedAt: now.Add(-time.Minute)})

	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
}

func TestPollerExplicitCloseAfterConfirmation(t *testing.T) {
	ex := mocks.NewMockExchange()
	ex.SetPositions(masterCreds.APIKey, btc(1))
	p, now := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	ex.SetPositions(masterCreds.APIKey)
	ex.AddFill(masterCreds.APIKey, domain.Fill{ID: 20, ProductID: 27, Symbol: "BTCUSD", Side: domain.SideSell, Size: 1,
		CreatedAt: now.Add(time.Second)})

	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	require.Len(t, res.Closes, 1)
	assert.Equal(t, "BTCUSD", res.Closes[0].Symbol)
	assert.Equal(t, 1.0, res.Closes[0].PreviousSize)
	assert.Empty(t, res.Trades, "the flattening fill is handled by the close")
	assert.Equal(t, 1, ex.CallCount("GetPosition"))
}

func TestPollerListedZeroClosesWithoutConfirmation(t *testing.T) {
	ex := mocks.NewMockExchange()
	ex.SetPositions(masterCreds.APIKey, btc(-2))
	p, _ := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	ex.SetPositions(masterCreds.APIKey, btc(0))
	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	require.Len(t, res.Closes, 1)
	assert.Equal(t, -2.0, res.Closes[0].PreviousSize)
	assert.Zero(t, ex.CallCount("GetPosition"))
}

func TestPollerConfirmationFailureIsNotAClose(t *testing.T) {
	ex := mocks.NewMockExchange()
	ex.SetPositions(masterCreds.APIKey, btc(1))
	p, _ := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	ex.SetPositions(masterCreds.APIKey)
	ex.FailNext("GetPosition", &domain.ExchangeError{Kind: domain.ErrNetwork, Message: "timeout"})

	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.Empty(t, res.Closes)

	// previous position was carried forward, so the next confirmed absence closes it
	res, err = p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.Len(t, res.Closes, 1)
}

func TestPollerMissingButStillOpenIsNotAClose(t *testing.T) {
	ex := mocks.NewMockExchange()
	ex.SetPositions(masterCreds.APIKey, btc(1))
	p, _ := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	// list omits the position but the per-product query still has it
	ex.SetPositions(masterCreds.APIKey)
	ex.Unlisted[masterCreds.APIKey] = []domain.Position{{ProductID: 27, Size: 0.5}}

	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.Empty(t, res.Closes)

	// still carried, so a later explicit zero closes it
	ex.Unlisted[masterCreds.APIKey] = nil
	res, err = p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	require.Len(t, res.Closes, 1)
	assert.Equal(t, 0.5, res.Closes[0].PreviousSize)
}

func TestPollerFailedFetchLeavesSnapshot(t *testing.T) {
	ex := mocks.NewMockExchange()
	ex.SetPositions(masterCreds.APIKey, btc(1))
	p, _ := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	ex.SetPositions(masterCreds.APIKey)
	ex.FailNext("GetPositions", &domain.ExchangeError{Kind: domain.ErrMalformedResponse, Message: "missing result"})

	res, err := p.Poll(context.Background(), masterCreds)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Nil(t, res)

	ex.FailNext("GetFills", &domain.ExchangeError{Kind: domain.ErrNetwork})
	_, err = p.Poll(context.Background(), masterCreds)
	assert.ErrorIs(t, err, domain.ErrNetwork)

	res, err = p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.Len(t, res.Closes, 1, "snapshot from before the failures is still the reference")
}

func TestPollerPositionSource(t *testing.T) {
	ex := mocks.NewMockExchange()
	p, now := newTestPoller(ex, domain.SourcePosition)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	ex.SetPositions(masterCreds.APIKey, btc(-1))
	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, "position_27_"+strconv.FormatInt(now.Unix(), 10), tr.MasterTradeID)
	assert.Equal(t, domain.SideSell, tr.Side)
	assert.Equal(t, 1.0, tr.Size)
	assert.Equal(t, domain.SourcePosition, tr.Source)
	assert.Zero(t, ex.CallCount("GetFills"))

	res, err = p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
}

func TestPollerResetTakesNewBaseline(t *testing.T) {
	ex := mocks.NewMockExchange()
	p, _ := newTestPoller(ex, domain.SourceFill)

	_, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)

	p.Reset()
	res, err := p.Poll(context.Background(), masterCreds)
	require.NoError(t, err)
	assert.True(t, res.Baseline)
}
