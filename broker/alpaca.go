package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/kiwiquant/kiwitrader/types"
)

// AlpacaBroker executes against the Alpaca trading API. Pointing baseURL
// at the paper endpoint gives paper trading with the same code path.
type AlpacaBroker struct {
	client *alpaca.Client
}

// NewAlpacaBroker builds a broker over the Alpaca REST API.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AlpacaBroker{client: client}
}

func (b *AlpacaBroker) PlaceOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qty := decimal.NewFromInt(int64(order.Quantity))
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(order.Side),
		Type:        alpaca.OrderType(order.Type),
		TimeInForce: alpaca.Day,
	}
	if order.Type == types.OrderTypeLimit && order.LimitPrice != nil {
		lp := decimal.NewFromFloat(*order.LimitPrice)
		req.LimitPrice = &lp
	}

	placed, err := b.client.PlaceOrder(req)
	if err != nil {
		return nil, fmt.Errorf("failed to place order for %s: %w", order.Symbol, err)
	}
	return orderToResult(placed), nil
}

func (b *AlpacaBroker) GetOpenPositions(ctx context.Context) ([]types.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	out := make([]types.Position, 0, len(positions))
	for _, pos := range positions {
		qty, _ := pos.Qty.Float64()
		avgPrice, _ := pos.AvgEntryPrice.Float64()
		out = append(out, types.Position{
			Symbol:        pos.Symbol,
			Quantity:      qty,
			AvgEntryPrice: avgPrice,
			CurrentPrice:  decimalPtrFloat(pos.CurrentPrice),
			MarketValue:   decimalPtrFloat(pos.MarketValue),
			UnrealizedPL:  decimalPtrFloat(pos.UnrealizedPL),
		})
	}
	return out, nil
}

func (b *AlpacaBroker) GetAccount(ctx context.Context) (*types.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, err := b.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	cash, _ := acct.Cash.Float64()
	portfolioValue, _ := acct.PortfolioValue.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()
	equity, _ := acct.Equity.Float64()
	return &types.Account{
		Cash:           cash,
		PortfolioValue: portfolioValue,
		BuyingPower:    buyingPower,
		Equity:         equity,
		Status:         string(acct.Status),
	}, nil
}

func (b *AlpacaBroker) ClosePosition(ctx context.Context, symbol string) (*types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order, err := b.client.ClosePosition(symbol, alpaca.ClosePositionRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to close position in %s: %w", symbol, err)
	}
	return orderToResult(order), nil
}

func (b *AlpacaBroker) CloseAllPositions(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.client.CloseAllPositions(alpaca.CloseAllPositionsRequest{}); err != nil {
		return fmt.Errorf("failed to close all positions: %w", err)
	}
	return nil
}

func (b *AlpacaBroker) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order, err := b.client.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return orderToResult(order), nil
}

func orderToResult(order *alpaca.Order) *types.OrderResult {
	qty := 0
	if order.Qty != nil {
		q, _ := order.Qty.Float64()
		qty = int(q)
	}
	return &types.OrderResult{
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Quantity:    qty,
		Side:        string(order.Side),
		Type:        string(order.Type),
		Status:      string(order.Status),
		FilledPrice: decimalPtrFloat(order.FilledAvgPrice),
		CreatedAt:   order.CreatedAt,
	}
}

func decimalPtrFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	v, _ := d.Float64()
	return v
}
