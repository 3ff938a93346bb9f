package syncer

import "sync"

// Dedup bounds; exact LRU ordering is not required, only a generous recency
// window so the seen set cannot grow without bound.
const (
	dedupHighWater = 1000
	dedupKeepTail  = 500
)

// Deduplicator remembers which trade ids have already been dispatched.
// A trade is marked before its handler runs, so a persistently failing
// trade is never retried. Safe for concurrent use: the poll loop and the
// WebSocket fast path both consult it.
type Deduplicator struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string // insertion order, oldest first
}

// NewDeduplicator returns an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Seen reports whether id was already marked.
func (d *Deduplicator) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// MarkSeen records id, trimming the set to its recent tail once it grows
// past the high-water mark. Returns false if id was already present.
func (d *Deduplicator) MarkSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}

	d.seen[id] = struct{}{}
	d.order = append(d.order, id)

	if len(d.order) > dedupHighWater {
		cut := len(d.order) - dedupKeepTail
		for _, old := range d.order[:cut] {
			delete(d.seen, old)
		}
		d.order = append(d.order[:0:0], d.order[cut:]...)
	}

	return true
}

// Len returns the current size of the seen set.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
