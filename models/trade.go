// Package models defines the shared domain types for the copy-trading bot.
package models

import "time"

// Trade is a single trade observed on the target wallet, as reported by the
// data API activity feed or the live-activity WebSocket.
type Trade struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"proxyWallet"`
	TokenID   string    `json:"asset"`
	Side      string    `json:"side"` // BUY or SELL
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	UsdcSize  float64   `json:"usdcSize"`
	Outcome   string    `json:"outcome"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"-"`
}

// OwnPosition is a position reported by the exchange positions endpoint for
// our own wallet. Used to seed and reconcile the in-memory ledger.
type OwnPosition struct {
	TokenID  string  `json:"asset"`
	Size     float64 `json:"size"`
	AvgPrice float64 `json:"avgPrice"`
}

// Copy-trade record statuses.
const (
	CopyStatusExecuted = "executed"
	CopyStatusSkipped  = "skipped"
	CopyStatusFailed   = "failed"
)

// CopyRecord is the journal entry written for every target trade the engine
// handled, whether it resulted in an order or not.
type CopyRecord struct {
	ID             string    `json:"id"`
	TargetTradeID  string    `json:"target_trade_id"`
	TargetWallet   string    `json:"target_wallet"`
	TokenID        string    `json:"token_id"`
	Outcome        string    `json:"outcome"`
	Title          string    `json:"title"`
	Side           string    `json:"side"`
	Action         string    `json:"action"` // OPENED, ADDED, REDUCED, CLOSED
	Status         string    `json:"status"` // executed, skipped, failed
	Reason         string    `json:"reason,omitempty"`
	Price          float64   `json:"price"`
	Size           float64   `json:"size"`
	RealizedPnL    float64   `json:"realized_pnl"`
	RealizedPnLPct float64   `json:"realized_pnl_pct"`
	OrderID        string    `json:"order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CopyStats aggregates journal records for the status API.
type CopyStats struct {
	Total       int     `json:"total"`
	Executed    int     `json:"executed"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	TotalPnL    float64 `json:"total_pnl"`
	TotalVolume float64 `json:"total_volume"`
}
