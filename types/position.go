package types

import "time"

// Position represents an open position held at the broker. Quantity is
// signed: positive for long, negative for short. Positions are owned by the
// broker and read-only to the rest of the pipeline.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
}

// Account represents the broker account state.
type Account struct {
	Cash           float64 `json:"cash"`
	PortfolioValue float64 `json:"portfolio_value"`
	BuyingPower    float64 `json:"buying_power"`
	Equity         float64 `json:"equity"`
	Status         string  `json:"status"`
}

// Order sides and types accepted by the broker interface.
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// OrderRequest describes an order to submit to the broker.
type OrderRequest struct {
	Symbol     string   `json:"symbol"`
	Quantity   int      `json:"qty"`
	Side       string   `json:"side"`       // "buy" or "sell"
	Type       string   `json:"type"`       // "market" or "limit"
	LimitPrice *float64 `json:"limit_price,omitempty"`
}

// OrderResult describes the broker's response to a submitted order.
type OrderResult struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Quantity    int       `json:"qty"`
	Side        string    `json:"side"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	FilledPrice float64   `json:"filled_price,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
