package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiwiquant/kiwitrader/types"
)

// MockBroker is an in-memory Broker for paper simulation and tests. Fills
// are immediate at the last price set via SetPrice (or the limit price for
// limit orders).
type MockBroker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*types.Position
	orders    map[string]*types.OrderResult
	prices    map[string]float64
	nextID    int
}

// NewMockBroker creates a simulated broker seeded with initialCash.
func NewMockBroker(initialCash float64) *MockBroker {
	return &MockBroker{
		cash:      initialCash,
		positions: make(map[string]*types.Position),
		orders:    make(map[string]*types.OrderResult),
		prices:    make(map[string]float64),
	}
}

// SetPrice sets the simulated market price for symbol and revalues any
// open position in it.
func (b *MockBroker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
	if pos, ok := b.positions[symbol]; ok {
		pos.CurrentPrice = price
		pos.MarketValue = pos.Quantity * price
		pos.UnrealizedPL = (price - pos.AvgEntryPrice) * pos.Quantity
	}
}

func (b *MockBroker) PlaceOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if order.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", order.Quantity)
	}
	price, ok := b.prices[order.Symbol]
	if order.Type == types.OrderTypeLimit && order.LimitPrice != nil {
		price, ok = *order.LimitPrice, true
	}
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no price available for %s", order.Symbol)
	}

	qty := float64(order.Quantity)
	if order.Side == types.OrderSideSell {
		qty = -qty
	}
	cost := qty * price
	if cost > 0 && cost > b.cash {
		return nil, fmt.Errorf("insufficient cash: need %.2f, have %.2f", cost, b.cash)
	}
	b.cash -= cost
	b.applyFill(order.Symbol, qty, price)

	b.nextID++
	result := &types.OrderResult{
		OrderID:     fmt.Sprintf("mock-%d", b.nextID),
		Symbol:      order.Symbol,
		Quantity:    order.Quantity,
		Side:        order.Side,
		Type:        order.Type,
		Status:      "filled",
		FilledPrice: price,
		CreatedAt:   time.Now(),
	}
	b.orders[result.OrderID] = result
	return result, nil
}

// applyFill merges a fill into the position book, averaging the entry on
// adds and removing the position when quantity reaches zero. Caller holds
// the lock.
func (b *MockBroker) applyFill(symbol string, qty, price float64) {
	pos, ok := b.positions[symbol]
	if !ok {
		b.positions[symbol] = &types.Position{
			Symbol:        symbol,
			Quantity:      qty,
			AvgEntryPrice: price,
			CurrentPrice:  price,
			MarketValue:   qty * price,
		}
		return
	}

	newQty := pos.Quantity + qty
	if newQty == 0 {
		delete(b.positions, symbol)
		return
	}
	// Same-direction adds move the average entry; reductions keep it.
	if (pos.Quantity > 0) == (qty > 0) {
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + price*qty) / newQty
	}
	pos.Quantity = newQty
	pos.CurrentPrice = price
	pos.MarketValue = newQty * price
	pos.UnrealizedPL = (price - pos.AvgEntryPrice) * newQty
}

func (b *MockBroker) GetOpenPositions(ctx context.Context) ([]types.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (b *MockBroker) GetAccount(ctx context.Context) (*types.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	value := b.cash
	for _, pos := range b.positions {
		value += pos.MarketValue
	}
	return &types.Account{
		Cash:           b.cash,
		PortfolioValue: value,
		BuyingPower:    b.cash,
		Equity:         value,
		Status:         "ACTIVE",
	}, nil
}

func (b *MockBroker) ClosePosition(ctx context.Context, symbol string) (*types.OrderResult, error) {
	b.mu.Lock()
	pos, ok := b.positions[symbol]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("no open position in %s", symbol)
	}
	qty := pos.Quantity
	b.mu.Unlock()

	side := types.OrderSideSell
	n := int(qty)
	if qty < 0 {
		side = types.OrderSideBuy
		n = int(-qty)
	}
	return b.PlaceOrder(ctx, types.OrderRequest{
		Symbol:   symbol,
		Quantity: n,
		Side:     side,
		Type:     types.OrderTypeMarket,
	})
}

func (b *MockBroker) CloseAllPositions(ctx context.Context) error {
	b.mu.Lock()
	symbols := make([]string, 0, len(b.positions))
	for sym := range b.positions {
		symbols = append(symbols, sym)
	}
	b.mu.Unlock()

	for _, sym := range symbols {
		if _, err := b.ClosePosition(ctx, sym); err != nil {
			return fmt.Errorf("closing %s: %w", sym, err)
		}
	}
	return nil
}

func (b *MockBroker) GetOrderStatus(ctx context.Context, orderID string) (*types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}
	cp := *order
	return &cp, nil
}
