package syncer

import (
	"context"

	"github.com/0xHamad/polymarket-copy-bot/api"
	"github.com/0xHamad/polymarket-copy-bot/models"
)

// Exchange is the boundary the engine trades through. The live
// implementation wraps the data API and CLOB clients; tests substitute
// their own.
type Exchange interface {
	// RecentTrades returns the most recent trades by wallet, newest first.
	RecentTrades(ctx context.Context, wallet string, limit int) ([]models.Trade, error)

	// Balance returns the wallet's available USDC balance.
	Balance(ctx context.Context, wallet string) (float64, error)

	// Positions returns the wallet's open positions.
	Positions(ctx context.Context, wallet string) ([]models.OwnPosition, error)

	// PlaceOrder submits an order and returns the exchange response.
	PlaceOrder(ctx context.Context, tokenID string, side api.Side, size, price float64) (*api.OrderResponse, error)
}

type liveExchange struct {
	data *api.DataClient
	clob *api.ClobClient
}

// NewLiveExchange wires the real API clients behind the Exchange interface.
func NewLiveExchange(data *api.DataClient, clob *api.ClobClient) Exchange {
	return &liveExchange{data: data, clob: clob}
}

func (e *liveExchange) RecentTrades(ctx context.Context, wallet string, limit int) ([]models.Trade, error) {
	return e.data.GetRecentTrades(ctx, wallet, limit)
}

func (e *liveExchange) Balance(ctx context.Context, wallet string) (float64, error) {
	return e.data.GetOnChainUSDCBalance(ctx, wallet)
}

func (e *liveExchange) Positions(ctx context.Context, wallet string) ([]models.OwnPosition, error) {
	return e.data.GetPositions(ctx, wallet)
}

func (e *liveExchange) PlaceOrder(ctx context.Context, tokenID string, side api.Side, size, price float64) (*api.OrderResponse, error) {
	// Token ids do not encode neg-risk; default to the standard exchange
	// contract.
	return e.clob.PlaceOrder(ctx, tokenID, side, size, price, false)
}
