package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/0xHamad/polymarket-copy-bot/api"
	"github.com/0xHamad/polymarket-copy-bot/ledger"
	"github.com/0xHamad/polymarket-copy-bot/models"
)

// fakeExchange is a thread-safe in-memory Exchange for engine tests.
type fakeExchange struct {
	mu        sync.Mutex
	trades    []models.Trade
	balance   float64
	positions []models.OwnPosition

	tradesErr  error
	balanceErr error
	orderErr   error
	rejectMsg  string
	failTokens map[string]bool // tokens whose orders error

	tradesCalls    int
	balanceCalls   int
	positionsCalls int

	orders []placedOrder
}

type placedOrder struct {
	tokenID string
	side    api.Side
	size    float64
	price   float64
}

func (f *fakeExchange) RecentTrades(ctx context.Context, wallet string, limit int) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tradesCalls++
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}
	return append([]models.Trade(nil), f.trades...), nil
}

func (f *fakeExchange) Balance(ctx context.Context, wallet string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeExchange) Positions(ctx context.Context, wallet string) ([]models.OwnPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionsCalls++
	return append([]models.OwnPosition(nil), f.positions...), nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, tokenID string, side api.Side, size, price float64) (*api.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil || f.failTokens[tokenID] {
		err := f.orderErr
		if err == nil {
			err = fmt.Errorf("order rejected for %s", tokenID)
		}
		return nil, err
	}
	if f.rejectMsg != "" {
		return &api.OrderResponse{Success: false, ErrorMsg: f.rejectMsg}, nil
	}
	f.orders = append(f.orders, placedOrder{tokenID: tokenID, side: side, size: size, price: price})
	return &api.OrderResponse{Success: true, OrderID: fmt.Sprintf("order-%d", len(f.orders))}, nil
}

func (f *fakeExchange) placedOrders() []placedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placedOrder(nil), f.orders...)
}

func (f *fakeExchange) calls() (trades, balance, positions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tradesCalls, f.balanceCalls, f.positionsCalls
}

func (f *fakeExchange) setTradesErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tradesErr = err
}

// fakeJournal captures copy records in memory for engine tests.
type fakeJournal struct {
	mu      sync.Mutex
	records []models.CopyRecord
}

func (j *fakeJournal) Close() error { return nil }

func (j *fakeJournal) SaveCopyTrade(ctx context.Context, rec models.CopyRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *fakeJournal) ListCopyTrades(ctx context.Context, limit int) ([]models.CopyRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.CopyRecord(nil), j.records...), nil
}

func (j *fakeJournal) CopyTradeStats(ctx context.Context) (models.CopyStats, error) {
	return models.CopyStats{}, nil
}

func newTestTrader(t *testing.T, exchange *fakeExchange) *CopyTrader {
	t.Helper()
	ct, err := NewCopyTrader(exchange, ledger.New(), nil, nil, nil, CopyTraderConfig{
		TargetWallet: "0xtarget",
		OwnWallet:    "0xme",
		Sizing:       SizingConfig{CopyPct: 5, MinTrade: 1, MaxTrade: 100},
	})
	if err != nil {
		t.Fatalf("NewCopyTrader: %v", err)
	}
	return ct
}

func buyTrade(id string) models.Trade {
	return models.Trade{
		ID: id, Wallet: "0xtarget", TokenID: "tok-1",
		Side: "BUY", Price: 0.50, Size: 500, UsdcSize: 250,
	}
}

func TestDuplicateTradeCopiedOnce(t *testing.T) {
	trade := buyTrade("dup-1")
	exchange := &fakeExchange{balance: 200, trades: []models.Trade{trade, trade}}
	ct := newTestTrader(t, exchange)

	ctx := context.Background()
	ct.pollOnce(ctx)
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 1 {
		t.Fatalf("placed %d orders for duplicated trade, want 1", got)
	}

	// A repeat poll returning the same trade places nothing new
	ct.pollOnce(ctx)
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 1 {
		t.Fatalf("placed %d orders after repeat poll, want 1", got)
	}

	attempted, succeeded, _, _ := ct.Stats()
	if attempted != 1 || succeeded != 1 {
		t.Errorf("stats = %d/%d, want 1/1", succeeded, attempted)
	}
}

func TestSuccessfulBuyUpdatesLedger(t *testing.T) {
	exchange := &fakeExchange{balance: 200, trades: []models.Trade{buyTrade("buy-1")}}
	ct := newTestTrader(t, exchange)

	ct.pollOnce(context.Background())
	ct.inFlight.Wait()

	orders := exchange.placedOrders()
	if len(orders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(orders))
	}
	if orders[0].side != api.SideBuy || !floatEquals(orders[0].size, 10, 0.001) {
		t.Errorf("order = %+v, want BUY size 10", orders[0])
	}

	pos := ct.ledger.Get("tok-1")
	if !floatEquals(pos.Size, 10, 0.001) || !floatEquals(pos.AvgCost, 0.50, 0.001) {
		t.Errorf("position = %+v, want size 10 avg 0.50", pos)
	}
}

func TestSkippedTradePlacesNoOrder(t *testing.T) {
	exchange := &fakeExchange{balance: 0.25, trades: []models.Trade{buyTrade("poor-1")}}
	ct := newTestTrader(t, exchange)

	ct.pollOnce(context.Background())
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 0 {
		t.Fatalf("placed %d orders with insufficient balance, want 0", got)
	}
	if pos := ct.ledger.Get("tok-1"); pos.Size != 0 {
		t.Errorf("ledger mutated on skipped trade: %+v", pos)
	}

	_, succeeded, skipped, _ := ct.Stats()
	if succeeded != 0 || skipped != 1 {
		t.Errorf("succeeded=%d skipped=%d, want 0 and 1", succeeded, skipped)
	}
}

func TestFailedOrderLeavesLedgerUntouched(t *testing.T) {
	exchange := &fakeExchange{
		balance:   200,
		trades:    []models.Trade{buyTrade("fail-1")},
		rejectMsg: "market closed",
	}
	ct := newTestTrader(t, exchange)

	ct.pollOnce(context.Background())
	ct.inFlight.Wait()

	if pos := ct.ledger.Get("tok-1"); pos.Size != 0 {
		t.Errorf("ledger mutated on failed order: %+v", pos)
	}

	_, succeeded, _, failed := ct.Stats()
	if succeeded != 0 || failed != 1 {
		t.Errorf("succeeded=%d failed=%d, want 0 and 1", succeeded, failed)
	}
}

func TestFailureIsolation(t *testing.T) {
	bad := buyTrade("iso-bad")
	bad.TokenID = "tok-bad"
	good := buyTrade("iso-good")

	exchange := &fakeExchange{
		balance:    200,
		trades:     []models.Trade{bad, good},
		failTokens: map[string]bool{"tok-bad": true},
	}
	ct := newTestTrader(t, exchange)

	ct.pollOnce(context.Background())
	ct.inFlight.Wait()

	orders := exchange.placedOrders()
	if len(orders) != 1 || orders[0].tokenID != "tok-1" {
		t.Fatalf("orders = %+v, want exactly the good trade", orders)
	}

	_, succeeded, _, failed := ct.Stats()
	if succeeded != 1 || failed != 1 {
		t.Errorf("succeeded=%d failed=%d, want 1 and 1", succeeded, failed)
	}
}

func TestSellUsesReconciledPosition(t *testing.T) {
	sell := models.Trade{
		ID: "sell-1", Wallet: "0xtarget", TokenID: "tok-1",
		Side: "SELL", Price: 0.80, Size: 10,
	}
	exchange := &fakeExchange{
		balance:   200,
		trades:    []models.Trade{sell},
		positions: []models.OwnPosition{{TokenID: "tok-1", Size: 20, AvgPrice: 0.60}},
	}
	ct := newTestTrader(t, exchange)

	ct.pollOnce(context.Background())
	ct.inFlight.Wait()

	orders := exchange.placedOrders()
	if len(orders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(orders))
	}
	if orders[0].side != api.SideSell || !floatEquals(orders[0].size, 10, 0.001) {
		t.Errorf("order = %+v, want SELL size 10", orders[0])
	}

	pos := ct.ledger.Get("tok-1")
	if !floatEquals(pos.Size, 10, 0.001) {
		t.Errorf("remaining size = %.4f, want 10", pos.Size)
	}
	if !floatEquals(pos.AvgCost, 0.60, 0.001) {
		t.Errorf("avg cost changed on reduce: %.4f", pos.AvgCost)
	}
}

func TestPollErrorSkipsCycle(t *testing.T) {
	trade := buyTrade("feed-1")
	exchange := &fakeExchange{balance: 200, trades: []models.Trade{trade}}
	exchange.tradesErr = errors.New("data-api 502")
	ct := newTestTrader(t, exchange)

	ctx := context.Background()
	ct.pollOnce(ctx)
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 0 {
		t.Fatalf("placed %d orders during feed outage, want 0", got)
	}
	if attempted, _, _, _ := ct.Stats(); attempted != 0 {
		t.Fatalf("attempted = %d during feed outage, want 0", attempted)
	}

	// Feed recovers; the next cycle copies the trade.
	exchange.setTradesErr(nil)
	ct.pollOnce(ctx)
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 1 {
		t.Fatalf("placed %d orders after recovery, want 1", got)
	}
	attempted, succeeded, _, _ := ct.Stats()
	if attempted != 1 || succeeded != 1 {
		t.Fatalf("stats after recovery = %d/%d, want 1/1", attempted, succeeded)
	}
}

func TestBalanceFailureBlocksBuys(t *testing.T) {
	exchange := &fakeExchange{trades: []models.Trade{buyTrade("bal-1")}}
	exchange.balanceErr = errors.New("clob 503")
	journal := &fakeJournal{}
	ct, err := NewCopyTrader(exchange, ledger.New(), journal, nil, nil, CopyTraderConfig{
		TargetWallet: "0xtarget",
		OwnWallet:    "0xme",
		Sizing:       SizingConfig{CopyPct: 5, MinTrade: 1, MaxTrade: 100},
	})
	if err != nil {
		t.Fatalf("NewCopyTrader: %v", err)
	}

	ct.pollOnce(context.Background())
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 0 {
		t.Fatalf("placed %d orders with unknown balance, want 0", got)
	}
	if _, _, skipped, _ := ct.Stats(); skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.records) != 1 {
		t.Fatalf("journal has %d records, want 1", len(journal.records))
	}
	rec := journal.records[0]
	if rec.Status != models.CopyStatusSkipped || rec.Reason != SkipInsufficientBalance {
		t.Fatalf("journal record = %s/%q, want %s/%q",
			rec.Status, rec.Reason, models.CopyStatusSkipped, SkipInsufficientBalance)
	}
}

func TestSnapshotsCachedWithinWindow(t *testing.T) {
	exchange := &fakeExchange{balance: 500}
	ct, err := NewCopyTrader(exchange, ledger.New(), nil, nil, nil, CopyTraderConfig{
		TargetWallet: "0xtarget",
		OwnWallet:    "0xme",
		Sizing:       SizingConfig{CopyPct: 5, MinTrade: 1, MaxTrade: 100},
		SnapshotTTL:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCopyTrader: %v", err)
	}

	ctx := context.Background()
	ct.Submit(ctx, buyTrade("ttl-1"))
	ct.inFlight.Wait()
	if _, balance, positions := exchange.calls(); balance != 1 || positions != 1 {
		t.Fatalf("calls after first dispatch = %d/%d, want 1/1", balance, positions)
	}

	// Second dispatch inside the window reuses both snapshots.
	ct.Submit(ctx, buyTrade("ttl-2"))
	ct.inFlight.Wait()
	if _, balance, positions := exchange.calls(); balance != 1 || positions != 1 {
		t.Fatalf("calls inside window = %d/%d, want 1/1", balance, positions)
	}

	time.Sleep(80 * time.Millisecond)
	ct.Submit(ctx, buyTrade("ttl-3"))
	ct.inFlight.Wait()
	if _, balance, positions := exchange.calls(); balance != 2 || positions != 2 {
		t.Fatalf("calls after window expiry = %d/%d, want 2/2", balance, positions)
	}
}

func TestConcurrentHandlersShareOneRefresh(t *testing.T) {
	exchange := &fakeExchange{balance: 2000}
	ct := newTestTrader(t, exchange)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ct.Submit(ctx, buyTrade(fmt.Sprintf("con-%d", n)))
		}(i)
	}
	wg.Wait()
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 8 {
		t.Fatalf("placed %d orders, want 8", got)
	}
	_, balance, positions := exchange.calls()
	if balance != 1 || positions != 1 {
		t.Fatalf("snapshot fetches = %d/%d, want 1/1", balance, positions)
	}
}

func TestSubmitSharesDedupWithPolling(t *testing.T) {
	trade := buyTrade("ws-1")
	exchange := &fakeExchange{balance: 200, trades: []models.Trade{trade}}
	ct := newTestTrader(t, exchange)

	ctx := context.Background()
	ct.Submit(ctx, trade) // fast path sees it first
	ct.inFlight.Wait()
	ct.pollOnce(ctx) // poll finds the same trade
	ct.inFlight.Wait()

	if got := len(exchange.placedOrders()); got != 1 {
		t.Fatalf("placed %d orders, want 1", got)
	}
}
