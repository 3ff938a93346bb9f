package syncer

import (
	"github.com/0xHamad/polymarket-copy-bot/api"
	"github.com/0xHamad/polymarket-copy-bot/ledger"
	"github.com/0xHamad/polymarket-copy-bot/models"
)

// Action classifies what a copy order does to our position.
type Action string

const (
	ActionOpened  Action = "OPENED"
	ActionAdded   Action = "ADDED"
	ActionReduced Action = "REDUCED"
	ActionClosed  Action = "CLOSED"
)

// Skip reasons for trades that produce no order.
const (
	SkipInsufficientBalance = "insufficient balance"
	SkipNoPositionToSell    = "no position to sell"
	SkipUnknownSide         = "unknown side"
)

// Minimum sell size floor so rounding never produces a zero-size order.
const minSellSize = 0.01

// SizingConfig are the bounds applied to every copy order.
type SizingConfig struct {
	CopyPct  float64 // percent of balance committed per buy, (0, 100]
	MinTrade float64 // minimum order size in USD
	MaxTrade float64 // maximum order size in USD
}

// Decision is the sizing outcome for one target trade. When Execute is
// false, SkipReason says why and no order is placed. Size is in USDC for
// buys and in tokens for sells, mirroring how orders are submitted.
type Decision struct {
	Execute        bool
	Side           api.Side
	Size           float64
	Price          float64
	Action         Action
	SkipReason     string
	RealizedPnL    float64
	RealizedPnLPct float64
}

// Decide sizes our response to a target trade given our current position
// and available balance. Pure function for easy testing.
func Decide(trade models.Trade, position ledger.Position, balance float64, cfg SizingConfig) Decision {
	switch api.Side(trade.Side) {
	case api.SideBuy:
		return decideBuy(trade, position, balance, cfg)
	case api.SideSell:
		return decideSell(trade, position)
	default:
		// REDEEM/SPLIT/MERGE and anything else: not an error, just not copyable
		return Decision{SkipReason: SkipUnknownSide}
	}
}

func decideBuy(trade models.Trade, position ledger.Position, balance float64, cfg SizingConfig) Decision {
	// Size by our own balance, not the target's trade size: the wallets are
	// not comparable in magnitude.
	size := balance * cfg.CopyPct / 100
	if size < cfg.MinTrade {
		size = cfg.MinTrade
	}
	if size > cfg.MaxTrade {
		size = cfg.MaxTrade
	}

	if size < cfg.MinTrade || balance < size {
		return Decision{
			Side:       api.SideBuy,
			SkipReason: SkipInsufficientBalance,
		}
	}

	action := ActionOpened
	if position.Size > 0 {
		action = ActionAdded
	}

	return Decision{
		Execute: true,
		Side:    api.SideBuy,
		Size:    size,
		Price:   trade.Price,
		Action:  action,
	}
}

func decideSell(trade models.Trade, position ledger.Position) Decision {
	if position.Size <= 0 {
		return Decision{
			Side:       api.SideSell,
			SkipReason: SkipNoPositionToSell,
		}
	}

	// Sell the same fraction of our position that the target's trade size
	// represents against ours. We cannot see the target's position, so this
	// is a heuristic, not exact replication.
	proportion := trade.Size / position.Size
	if proportion > 1.0 {
		proportion = 1.0
	}

	size := position.Size * proportion
	if size < minSellSize {
		size = minSellSize
	}
	if size > position.Size {
		size = position.Size
	}

	action := ActionReduced
	if size >= position.Size*0.99 {
		action = ActionClosed
	}

	var pnl, pnlPct float64
	if position.AvgCost > 0 {
		pnl = (trade.Price - position.AvgCost) * size
		pnlPct = (trade.Price - position.AvgCost) / position.AvgCost * 100
	}

	return Decision{
		Execute:        true,
		Side:           api.SideSell,
		Size:           size,
		Price:          trade.Price,
		Action:         action,
		RealizedPnL:    pnl,
		RealizedPnLPct: pnlPct,
	}
}
