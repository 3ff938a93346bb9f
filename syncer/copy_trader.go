// Package syncer contains the copy engine: the loop that watches a target
// wallet's trades and mirrors them, scaled to our own balance.
package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xHamad/polymarket-copy-bot/api"
	"github.com/0xHamad/polymarket-copy-bot/ledger"
	"github.com/0xHamad/polymarket-copy-bot/models"
	"github.com/0xHamad/polymarket-copy-bot/storage"
)

// Notifier delivers best-effort status messages. Failures are the
// notifier's problem, never the engine's.
type Notifier interface {
	Send(msg string)
}

// CopyTraderConfig holds configuration for the copy engine.
type CopyTraderConfig struct {
	TargetWallet    string
	OwnWallet       string
	Sizing          SizingConfig
	PollInterval    time.Duration
	TradeBatchLimit int           // trades fetched per poll
	SnapshotTTL     time.Duration // balance/position freshness window
}

func (c *CopyTraderConfig) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.TradeBatchLimit == 0 {
		c.TradeBatchLimit = 10
	}
	if c.SnapshotTTL == 0 {
		c.SnapshotTTL = 30 * time.Second
	}
}

// CopyTrader polls the target wallet and dispatches a handler goroutine per
// new trade. Handlers are independent: a slow or failing trade never blocks
// the next poll or another trade.
type CopyTrader struct {
	exchange Exchange
	ledger   *ledger.Ledger
	dedup    *Deduplicator
	journal  storage.Journal // may be nil
	notifier Notifier        // may be nil
	metrics  *MetricsStore   // nil-safe
	config   CopyTraderConfig

	running  bool
	stopCh   chan struct{}
	loopWg   sync.WaitGroup
	inFlight sync.WaitGroup

	statsMu   sync.Mutex
	attempted int64
	succeeded int64
	skipped   int64
	failed    int64

	// refreshMu serializes snapshot refreshes; snapMu guards the fields.
	// Handlers recheck freshness after acquiring refreshMu, so a window
	// produces at most one fetch of each snapshot.
	refreshMu   sync.Mutex
	snapMu      sync.Mutex
	balance     float64
	balanceAt   time.Time
	positionsAt time.Time
}

// NewCopyTrader creates the engine. journal, notifier, and metrics are
// optional collaborators.
func NewCopyTrader(exchange Exchange, lgr *ledger.Ledger, journal storage.Journal, notifier Notifier, metrics *MetricsStore, config CopyTraderConfig) (*CopyTrader, error) {
	if exchange == nil {
		return nil, fmt.Errorf("exchange is required")
	}
	if lgr == nil {
		lgr = ledger.New()
	}
	config.applyDefaults()

	return &CopyTrader{
		exchange: exchange,
		ledger:   lgr,
		dedup:    NewDeduplicator(),
		journal:  journal,
		notifier: notifier,
		metrics:  metrics,
		config:   config,
		stopCh:   make(chan struct{}),
	}, nil
}

// Ledger exposes the engine's position ledger for the status API.
func (ct *CopyTrader) Ledger() *ledger.Ledger {
	return ct.ledger
}

// Start begins monitoring. Returns an error if already running.
func (ct *CopyTrader) Start(ctx context.Context) error {
	if ct.running {
		return fmt.Errorf("copy trader already running")
	}
	ct.running = true

	balance, err := ct.exchange.Balance(ctx, ct.config.OwnWallet)
	if err != nil {
		log.Printf("[CopyTrader] Warning: initial balance query failed: %v", err)
		balance = 0
	}
	ct.snapMu.Lock()
	ct.balance = balance
	ct.balanceAt = time.Now()
	ct.snapMu.Unlock()

	ct.notify(fmt.Sprintf(
		"🤖 BOT STARTED\n\n💰 Balance: $%.2f\n👤 Copying: %s\n📊 Copy %%: %.1f",
		balance, shortAddr(ct.config.TargetWallet), ct.config.Sizing.CopyPct))

	ct.loopWg.Add(1)
	go ct.run(ctx)

	log.Printf("[CopyTrader] Started: target=%s copyPct=%.1f%% range=$%.2f-$%.2f interval=%v",
		ct.config.TargetWallet, ct.config.Sizing.CopyPct,
		ct.config.Sizing.MinTrade, ct.config.Sizing.MaxTrade, ct.config.PollInterval)

	return nil
}

// Stop halts polling, lets in-flight handlers finish (capped at 10s), and
// emits the shutdown summary.
func (ct *CopyTrader) Stop() {
	if !ct.running {
		return
	}
	ct.running = false
	close(ct.stopCh)
	ct.loopWg.Wait()

	done := make(chan struct{})
	go func() {
		ct.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Printf("[CopyTrader] Shutdown: abandoning in-flight trade handlers")
	}

	attempted, succeeded, _, _ := ct.Stats()
	log.Printf("[CopyTrader] Stopped. Success: %d/%d", succeeded, attempted)
	ct.notify(fmt.Sprintf("🛑 BOT STOPPED\n\n✅ Success: %d/%d", succeeded, attempted))
}

// Stats returns attempted, succeeded, skipped, and failed counts.
func (ct *CopyTrader) Stats() (attempted, succeeded, skipped, failed int64) {
	ct.statsMu.Lock()
	defer ct.statsMu.Unlock()
	return ct.attempted, ct.succeeded, ct.skipped, ct.failed
}

// LastBalance returns the cached balance snapshot and its age.
func (ct *CopyTrader) LastBalance() (float64, time.Time) {
	ct.snapMu.Lock()
	defer ct.snapMu.Unlock()
	return ct.balance, ct.balanceAt
}

// Submit routes an externally detected trade (the WebSocket fast path)
// through the same dedup and dispatch as the poll loop.
func (ct *CopyTrader) Submit(ctx context.Context, trade models.Trade) {
	ct.dispatch(ctx, trade)
}

func (ct *CopyTrader) run(ctx context.Context) {
	defer ct.loopWg.Done()

	ticker := time.NewTicker(ct.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ct.stopCh:
			return
		case <-ticker.C:
			ct.pollOnce(ctx)
		}
	}
}

func (ct *CopyTrader) pollOnce(ctx context.Context) {
	trades, err := ct.exchange.RecentTrades(ctx, ct.config.TargetWallet, ct.config.TradeBatchLimit)
	if err != nil {
		// Fail-soft: an empty cycle, the next poll retries
		log.Printf("[CopyTrader] Poll error: %v", err)
		return
	}

	for _, trade := range trades {
		ct.dispatch(ctx, trade)
	}
}

// dispatch marks the trade seen and hands it to an async handler. Marking
// happens before handling so a failing trade is never retried.
func (ct *CopyTrader) dispatch(ctx context.Context, trade models.Trade) {
	if trade.ID == "" || ct.dedup.Seen(trade.ID) {
		return
	}
	if !ct.dedup.MarkSeen(trade.ID) {
		return // lost the race to another dispatcher
	}

	ct.statsMu.Lock()
	ct.attempted++
	ct.statsMu.Unlock()

	log.Printf("[CopyTrader] ⚡ NEW TRADE: %s %s %.2f @ %.4f (%s)",
		trade.Side, trade.TokenID, trade.Size, trade.Price, trade.ID)

	ct.inFlight.Add(1)
	go ct.handleTrade(ctx, trade)
}

func (ct *CopyTrader) handleTrade(ctx context.Context, trade models.Trade) {
	defer ct.inFlight.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CopyTrader] Handler panic for trade %s: %v", trade.ID, r)
		}
	}()

	balance := ct.refreshSnapshots(ctx)
	position := ct.ledger.Get(trade.TokenID)

	decision := Decide(trade, position, balance, ct.config.Sizing)
	if !decision.Execute {
		if decision.SkipReason == SkipUnknownSide {
			return // silently ignore non-trade activity
		}
		log.Printf("[CopyTrader] Skip %s %s: %s (balance=$%.2f, position=%.2f)",
			trade.Side, trade.TokenID, decision.SkipReason, balance, position.Size)
		ct.recordOutcome(ctx, trade, decision, models.CopyStatusSkipped, decision.SkipReason, "")
		return
	}

	resp, err := ct.exchange.PlaceOrder(ctx, trade.TokenID, decision.Side, decision.Size, decision.Price)
	if err != nil {
		log.Printf("[CopyTrader] Order failed for trade %s: %v", trade.ID, err)
		ct.recordOutcome(ctx, trade, decision, models.CopyStatusFailed, err.Error(), "")
		return
	}
	if !resp.Success {
		log.Printf("[CopyTrader] Order rejected for trade %s: %s", trade.ID, resp.ErrorMsg)
		ct.recordOutcome(ctx, trade, decision, models.CopyStatusFailed, resp.ErrorMsg, "")
		return
	}

	// Submission succeeded: the ledger mutation and success counter happen
	// only on this path.
	var newPos ledger.Position
	if decision.Side == api.SideBuy {
		newPos = ct.ledger.ApplyBuy(trade.TokenID, decision.Size, decision.Price)
	} else {
		ct.ledger.ApplyReduce(trade.TokenID, decision.Size)
		newPos = ct.ledger.Get(trade.TokenID)
	}

	ct.statsMu.Lock()
	ct.succeeded++
	ct.statsMu.Unlock()

	log.Printf("[CopyTrader] ✓ %s %s: %.2f @ $%.4f (order %s)",
		decision.Action, trade.TokenID, decision.Size, decision.Price, resp.OrderID)

	ct.recordOutcome(ctx, trade, decision, models.CopyStatusExecuted, "", resp.OrderID)
	ct.notifyExecution(trade, decision, newPos, balance)
}

// refreshSnapshots refreshes the balance and position snapshots if they are
// older than the freshness window, and returns the current balance. Stale
// data within the window is reused: balances rarely move faster than trade
// cadence and querying per trade is wasteful.
func (ct *CopyTrader) refreshSnapshots(ctx context.Context) float64 {
	ct.refreshMu.Lock()
	defer ct.refreshMu.Unlock()

	ct.snapMu.Lock()
	balanceStale := time.Since(ct.balanceAt) >= ct.config.SnapshotTTL
	positionsStale := time.Since(ct.positionsAt) >= ct.config.SnapshotTTL
	balance := ct.balance
	ct.snapMu.Unlock()

	if positionsStale {
		if positions, err := ct.exchange.Positions(ctx, ct.config.OwnWallet); err == nil {
			byToken := make(map[string]ledger.Position, len(positions))
			for _, pos := range positions {
				byToken[pos.TokenID] = ledger.Position{Size: pos.Size, AvgCost: pos.AvgPrice}
			}
			ct.ledger.Replace(byToken)

			ct.snapMu.Lock()
			ct.positionsAt = time.Now()
			ct.snapMu.Unlock()
		} else {
			log.Printf("[CopyTrader] Position refresh failed: %v", err)
		}
	}

	if balanceStale {
		if fresh, err := ct.exchange.Balance(ctx, ct.config.OwnWallet); err == nil {
			ct.snapMu.Lock()
			ct.balance = fresh
			ct.balanceAt = time.Now()
			ct.snapMu.Unlock()
			balance = fresh
		} else {
			// Conservative: a zero balance blocks buys rather than
			// over-committing on stale data.
			log.Printf("[CopyTrader] Balance refresh failed: %v", err)
			balance = 0
		}
	}

	return balance
}

func (ct *CopyTrader) recordOutcome(ctx context.Context, trade models.Trade, decision Decision, status, reason, orderID string) {
	ct.statsMu.Lock()
	switch status {
	case models.CopyStatusSkipped:
		ct.skipped++
	case models.CopyStatusFailed:
		ct.failed++
	}
	attempted, succeeded, skipped, failed := ct.attempted, ct.succeeded, ct.skipped, ct.failed
	ct.statsMu.Unlock()

	if ct.journal != nil {
		rec := models.CopyRecord{
			ID:             uuid.NewString(),
			TargetTradeID:  trade.ID,
			TargetWallet:   trade.Wallet,
			TokenID:        trade.TokenID,
			Outcome:        trade.Outcome,
			Title:          trade.Title,
			Side:           string(decision.Side),
			Action:         string(decision.Action),
			Status:         status,
			Reason:         reason,
			Price:          decision.Price,
			Size:           decision.Size,
			RealizedPnL:    decision.RealizedPnL,
			RealizedPnLPct: decision.RealizedPnLPct,
			OrderID:        orderID,
			CreatedAt:      time.Now().UTC(),
		}
		if err := ct.journal.SaveCopyTrade(ctx, rec); err != nil {
			log.Printf("[CopyTrader] Warning: journal write failed: %v", err)
		}
	}

	metrics := EngineMetrics{
		TradesDetected: attempted,
		TradesCopied:   succeeded,
		TradesSkipped:  skipped,
		TradesFailed:   failed,
	}
	if status == models.CopyStatusExecuted {
		metrics.LastCopyTime = time.Now()
	}
	if err := ct.metrics.Save(ctx, metrics); err != nil {
		log.Printf("[CopyTrader] Warning: metrics save failed: %v", err)
	}
}

func (ct *CopyTrader) notifyExecution(trade models.Trade, decision Decision, pos ledger.Position, balance float64) {
	attempted, succeeded, _, _ := ct.Stats()

	if decision.Side == api.SideSell {
		trend := "➖"
		if decision.RealizedPnL > 0 {
			trend = "📈"
		} else if decision.RealizedPnL < 0 {
			trend = "📉"
		}
		ct.notify(fmt.Sprintf(
			"🔴 %s POSITION\n\n📉 Sold: %.2f\n💵 Price: $%.4f\n📊 Remaining: %.2f\n\n%s P&L: $%+.2f (%+.1f%%)\n💰 Balance: $%.2f\n\n✅ Success: %d/%d",
			decision.Action, decision.Size, decision.Price, pos.Size,
			trend, decision.RealizedPnL, decision.RealizedPnLPct, balance,
			succeeded, attempted))
		return
	}

	ct.notify(fmt.Sprintf(
		"🟢 %s POSITION\n\n📈 Size: $%.2f\n💵 Price: $%.4f\n📊 Total: %.2f\n💰 Balance: $%.2f\n\n✅ Success: %d/%d",
		decision.Action, decision.Size, decision.Price, pos.Size, balance,
		succeeded, attempted))
}

func (ct *CopyTrader) notify(msg string) {
	if ct.notifier != nil {
		ct.notifier.Send(msg)
	}
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10] + "..."
}
