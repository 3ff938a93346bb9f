package syncer

import (
	"fmt"
	"testing"
)

func TestDeduplicatorMarkSeen(t *testing.T) {
	d := NewDeduplicator()

	if d.Seen("a") {
		t.Error("fresh deduplicator reported id as seen")
	}
	if !d.MarkSeen("a") {
		t.Error("first MarkSeen returned false")
	}
	if d.MarkSeen("a") {
		t.Error("second MarkSeen returned true")
	}
	if !d.Seen("a") {
		t.Error("Seen returned false after MarkSeen")
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestDeduplicatorBounded(t *testing.T) {
	d := NewDeduplicator()

	for i := 0; i < dedupHighWater+1; i++ {
		d.MarkSeen(fmt.Sprintf("trade-%d", i))
	}

	if d.Len() > dedupKeepTail {
		t.Fatalf("Len = %d after overflow, want <= %d", d.Len(), dedupKeepTail)
	}

	// The retained window must be the most recent ids
	for i := dedupHighWater + 1 - d.Len(); i <= dedupHighWater; i++ {
		if !d.Seen(fmt.Sprintf("trade-%d", i)) {
			t.Errorf("recent id trade-%d evicted", i)
		}
	}
	if d.Seen("trade-0") {
		t.Error("oldest id survived trim")
	}
}

func TestDeduplicatorReseenAfterEviction(t *testing.T) {
	d := NewDeduplicator()

	d.MarkSeen("old")
	for i := 0; i < dedupHighWater+1; i++ {
		d.MarkSeen(fmt.Sprintf("filler-%d", i))
	}

	// An evicted id can be marked again; callers accept rare re-processing
	// of very old trades over unbounded memory.
	if !d.MarkSeen("old") {
		t.Error("evicted id could not be re-marked")
	}
}
