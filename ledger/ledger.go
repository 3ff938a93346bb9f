// Package ledger tracks our own open positions per outcome token: size held
// and the volume-weighted average entry price. It is the in-process source of
// truth between reconciliations against the exchange positions endpoint.
package ledger

import "sync"

// Position is the held size and weighted average cost for one token.
// A zero-size position is a legitimate, inert state; its AvgCost is
// meaningless until the next buy establishes a fresh basis.
type Position struct {
	Size    float64 `json:"size"`
	AvgCost float64 `json:"avg_cost"`
}

// Ledger is safe for concurrent use. Trade handlers run as independent
// goroutines with no ordering between them, so every mutation is applied
// atomically under the lock.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[string]Position)}
}

// Get returns the position for tokenID, or a zero position if none exists.
func (l *Ledger) Get(tokenID string) Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[tokenID]
}

// ApplyBuy records a buy of qty at price, updating the weighted average
// cost. A buy into a zero-size position discards any stale cost basis.
func (l *Ledger) ApplyBuy(tokenID string, qty, price float64) Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.positions[tokenID]
	newSize := pos.Size + qty
	if newSize > 0 {
		pos.AvgCost = (pos.Size*pos.AvgCost + qty*price) / newSize
	}
	pos.Size = newSize
	l.positions[tokenID] = pos
	return pos
}

// ApplyReduce records a sell of up to qty, clamping the size at zero. The
// cost basis of the remaining size is unchanged. Returns the quantity
// actually reduced, which is less than qty when qty exceeds the held size.
func (l *Ledger) ApplyReduce(tokenID string, qty float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.positions[tokenID]
	realized := qty
	if realized > pos.Size {
		realized = pos.Size
	}
	pos.Size -= realized
	l.positions[tokenID] = pos
	return realized
}

// Replace swaps the full position set with one fetched from the exchange.
// Used by the reconciliation path; local mutations keep applying on top of
// the replaced state until the next refresh.
func (l *Ledger) Replace(positions map[string]Position) {
	next := make(map[string]Position, len(positions))
	for id, pos := range positions {
		next[id] = pos
	}

	l.mu.Lock()
	l.positions = next
	l.mu.Unlock()
}

// Snapshot returns a copy of all positions.
func (l *Ledger) Snapshot() map[string]Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Position, len(l.positions))
	for id, pos := range l.positions {
		out[id] = pos
	}
	return out
}
