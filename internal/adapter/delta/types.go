package delta

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"copytrade/internal/domain"
	"copytrade/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

// serverTime extracts the exchange clock from an expired_signature context
func (e *apiError) serverTime() (int64, bool) {
	if e == nil || e.Context == nil {
		return 0, false
	}
	v, ok := e.Context["server_time"]
	if !ok {
		return 0, false
	}
	n, err := utils.ExtractInt(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

type product struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

type wirePosition struct {
	ProductID     int64        `json:"product_id"`
	ProductSymbol string       `json:"product_symbol"`
	Product       *product     `json:"product"`
	Size          utils.Number `json:"size"`
	EntryPrice    utils.Number `json:"entry_price"`
	MarkPrice     utils.Number `json:"mark_price"`
	UnrealizedPnL utils.Number `json:"unrealized_pnl"`
	RealizedPnL   utils.Number `json:"realized_pnl"`
}

func (w wirePosition) toDomain() domain.Position {
	p := domain.Position{
		ProductID:     w.ProductID,
		Symbol:        w.ProductSymbol,
		Size:          w.Size.Float64(),
		EntryPrice:    w.EntryPrice.Float64(),
		MarkPrice:     w.MarkPrice.Float64(),
		UnrealizedPnL: w.UnrealizedPnL.Float64(),
		RealizedPnL:   w.RealizedPnL.Float64(),
	}
	if w.Product != nil {
		if p.Symbol == "" {
			p.Symbol = w.Product.Symbol
		}
		if p.ProductID == 0 {
			p.ProductID = w.Product.ID
		}
	}
	return p
}

type wireFill struct {
	ID            json.Number     `json:"id"`
	OrderID       json.Number     `json:"order_id"`
	ProductID     int64           `json:"product_id"`
	ProductSymbol string          `json:"product_symbol"`
	Side          string          `json:"side"`
	Size          utils.Number    `json:"size"`
	Price         utils.Number    `json:"price"`
	CreatedAt     json.RawMessage `json:"created_at"`
}

func (w wireFill) toDomain() (domain.Fill, error) {
	id, err := w.ID.Int64()
	if err != nil {
		return domain.Fill{}, err
	}
	side, ok := domain.ParseSide(w.Side)
	if !ok {
		return domain.Fill{}, fmt.Errorf("unknown side %q", w.Side)
	}
	created, err := utils.ParseTime(string(w.CreatedAt))
	if err != nil {
		return domain.Fill{}, err
	}
	return domain.Fill{
		ID:        id,
		OrderID:   w.OrderID.String(),
		ProductID: w.ProductID,
		Symbol:    w.ProductSymbol,
		Side:      side,
		Size:      w.Size.Float64(),
		Price:     w.Price.Float64(),
		CreatedAt: created,
	}, nil
}

type wireOrder struct {
	ID               int64        `json:"id"`
	ProductID        int64        `json:"product_id"`
	ProductSymbol    string       `json:"product_symbol"`
	Side             string       `json:"side"`
	Size             utils.Number `json:"size"`
	UnfilledSize     utils.Number `json:"unfilled_size"`
	State            string       `json:"state"`
	ReduceOnly       bool         `json:"reduce_only"`
	AverageFillPrice utils.Number `json:"average_fill_price"`
}

func (w wireOrder) toDomain() domain.Order {
	side, _ := domain.ParseSide(w.Side)
	return domain.Order{
		ID:           w.ID,
		ProductID:    w.ProductID,
		Symbol:       w.ProductSymbol,
		Side:         side,
		Size:         w.Size.Float64(),
		UnfilledSize: w.UnfilledSize.Float64(),
		State:        w.State,
		ReduceOnly:   w.ReduceOnly,
	}
}

type wireTicker struct {
	Symbol    string       `json:"symbol"`
	MarkPrice utils.Number `json:"mark_price"`
	Close     utils.Number `json:"close"`
	SpotPrice utils.Number `json:"spot_price"`
}

type orderBody struct {
	ProductSymbol string      `json:"product_symbol,omitempty"`
	ProductID     int64       `json:"product_id,omitempty"`
	Size          json.Number `json:"size"`
	Side          domain.Side `json:"side"`
	OrderType     string      `json:"order_type"`
	ReduceOnly    bool        `json:"reduce_only"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
}

type cancelBody struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
}

// formatSize renders a size without float noise
func formatSize(size float64) json.Number {
	s := strconv.FormatFloat(size, 'f', 8, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return json.Number(s)
}
