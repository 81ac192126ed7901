// Package broker abstracts order execution and account state behind a
// single interface with live (Alpaca) and simulated implementations.
package broker

import (
	"context"

	"github.com/kiwiquant/kiwitrader/types"
)

// Broker is the execution surface the trading engine talks to. All calls
// accept a context so a shutdown can cancel in-flight requests.
type Broker interface {
	// PlaceOrder submits the order and returns the broker's view of it.
	PlaceOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResult, error)

	// GetOpenPositions returns all currently held positions.
	GetOpenPositions(ctx context.Context) ([]types.Position, error)

	// GetAccount returns current account balances and status.
	GetAccount(ctx context.Context) (*types.Account, error)

	// ClosePosition liquidates the position in symbol with a market order.
	ClosePosition(ctx context.Context, symbol string) (*types.OrderResult, error)

	// CloseAllPositions liquidates every open position.
	CloseAllPositions(ctx context.Context) error

	// GetOrderStatus returns the current state of a previously placed order.
	GetOrderStatus(ctx context.Context, orderID string) (*types.OrderResult, error)
}
