package dto

// TickRequest triggers one monitor tick for a broker account
type TickRequest struct {
	BrokerID string `json:"broker_id"`
}

// TradeData is a master trade supplied by hand
type TradeData struct {
	Symbol    string  `json:"symbol"`
	ProductID int64   `json:"product_id"`
	Side      string  `json:"side"`
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	OrderID   string  `json:"order_id"`
}

// CopyTradeRequest copies one trade to every active follower of a broker account
type CopyTradeRequest struct {
	BrokerID  string    `json:"broker_id"`
	TradeData TradeData `json:"trade_data"`
	TestMode  bool      `json:"test_mode"`
}
