package ledger

import (
	"sync"
	"testing"
)

func floatEquals(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	tests := []struct {
		name        string
		buys        [][2]float64 // qty, price
		wantSize    float64
		wantAvgCost float64
	}{
		{
			name:        "single buy sets basis",
			buys:        [][2]float64{{10, 0.50}},
			wantSize:    10,
			wantAvgCost: 0.50,
		},
		{
			name:        "two equal buys average evenly",
			buys:        [][2]float64{{10, 0.40}, {10, 0.60}},
			wantSize:    20,
			wantAvgCost: 0.50,
		},
		{
			name:        "weighted by size",
			buys:        [][2]float64{{30, 0.20}, {10, 0.60}},
			wantSize:    40,
			wantAvgCost: 0.30, // (30*0.20 + 10*0.60) / 40
		},
		{
			name:        "many small buys",
			buys:        [][2]float64{{1, 0.10}, {1, 0.20}, {1, 0.30}, {1, 0.40}},
			wantSize:    4,
			wantAvgCost: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			for _, buy := range tt.buys {
				l.ApplyBuy("token-1", buy[0], buy[1])
			}

			pos := l.Get("token-1")
			if !floatEquals(pos.Size, tt.wantSize, 1e-9) {
				t.Errorf("Size = %.4f, want %.4f", pos.Size, tt.wantSize)
			}
			if !floatEquals(pos.AvgCost, tt.wantAvgCost, 1e-9) {
				t.Errorf("AvgCost = %.4f, want %.4f", pos.AvgCost, tt.wantAvgCost)
			}
		})
	}
}

// Incremental average updates must match recomputing the volume-weighted
// average from scratch after every buy.
func TestIncrementalAverageMatchesRecompute(t *testing.T) {
	buys := [][2]float64{
		{5, 0.12}, {17.5, 0.44}, {0.3, 0.91}, {100, 0.05}, {2, 0.67},
	}

	l := New()
	var totalQty, totalCost float64
	for i, buy := range buys {
		l.ApplyBuy("tok", buy[0], buy[1])
		totalQty += buy[0]
		totalCost += buy[0] * buy[1]

		want := totalCost / totalQty
		got := l.Get("tok").AvgCost
		if !floatEquals(got, want, 1e-9) {
			t.Fatalf("after buy %d: AvgCost = %.9f, want %.9f", i+1, got, want)
		}
	}
}

func TestBuyAfterFullReduceResetsBasis(t *testing.T) {
	l := New()
	l.ApplyBuy("tok", 10, 0.80)
	l.ApplyReduce("tok", 10)

	// Position is inert at size zero; a fresh buy must not blend with the
	// stale 0.80 basis.
	pos := l.ApplyBuy("tok", 5, 0.20)
	if !floatEquals(pos.AvgCost, 0.20, 1e-9) {
		t.Errorf("AvgCost after re-entry = %.4f, want 0.20", pos.AvgCost)
	}
	if !floatEquals(pos.Size, 5, 1e-9) {
		t.Errorf("Size after re-entry = %.4f, want 5", pos.Size)
	}
}

func TestApplyReduce(t *testing.T) {
	tests := []struct {
		name         string
		startSize    float64
		reduceQty    float64
		wantRealized float64
		wantSize     float64
	}{
		{"partial reduce", 20, 5, 5, 15},
		{"exact reduce", 20, 20, 20, 0},
		{"over-reduce clamps at zero", 20, 50, 20, 0},
		{"reduce empty position", 0, 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			if tt.startSize > 0 {
				l.ApplyBuy("tok", tt.startSize, 0.50)
			}

			realized := l.ApplyReduce("tok", tt.reduceQty)
			if !floatEquals(realized, tt.wantRealized, 1e-9) {
				t.Errorf("realized = %.4f, want %.4f", realized, tt.wantRealized)
			}

			pos := l.Get("tok")
			if pos.Size < 0 {
				t.Errorf("size went negative: %.4f", pos.Size)
			}
			if !floatEquals(pos.Size, tt.wantSize, 1e-9) {
				t.Errorf("size = %.4f, want %.4f", pos.Size, tt.wantSize)
			}
		})
	}
}

func TestReduceLeavesAvgCostUnchanged(t *testing.T) {
	l := New()
	l.ApplyBuy("tok", 20, 0.60)
	l.ApplyReduce("tok", 8)

	pos := l.Get("tok")
	if !floatEquals(pos.AvgCost, 0.60, 1e-9) {
		t.Errorf("AvgCost = %.4f, want 0.60 (cost basis must survive a reduce)", pos.AvgCost)
	}
}

func TestGetUnknownToken(t *testing.T) {
	l := New()
	pos := l.Get("missing")
	if pos.Size != 0 || pos.AvgCost != 0 {
		t.Errorf("Get(missing) = %+v, want zero position", pos)
	}
}

func TestReplaceSnapshot(t *testing.T) {
	l := New()
	l.ApplyBuy("a", 10, 0.50)

	l.Replace(map[string]Position{
		"b": {Size: 3, AvgCost: 0.25},
	})

	if pos := l.Get("a"); pos.Size != 0 {
		t.Errorf("position a survived Replace: %+v", pos)
	}
	if pos := l.Get("b"); !floatEquals(pos.Size, 3, 1e-9) {
		t.Errorf("position b = %+v, want size 3", pos)
	}

	snap := l.Snapshot()
	snap["b"] = Position{Size: 999}
	if pos := l.Get("b"); pos.Size == 999 {
		t.Error("Snapshot returned a live reference to internal state")
	}
}

func TestConcurrentMutation(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.ApplyBuy("tok", 2, 0.50)
		}()
		go func() {
			defer wg.Done()
			l.ApplyReduce("tok", 1)
		}()
	}
	wg.Wait()

	// 50 buys of 2 and 50 reduces of up to 1 each: final size depends on
	// interleaving only through the clamp, and the clamp can only lose
	// reduces, never buys.
	pos := l.Get("tok")
	if pos.Size < 50 || pos.Size > 100 {
		t.Errorf("size = %.4f, want within [50, 100]", pos.Size)
	}
}
