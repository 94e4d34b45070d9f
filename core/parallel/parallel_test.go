package parallel

import (
	"sync/atomic"
	"testing"
)

func TestParallelizeN(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		workers int
	}{
		{"empty", 0, 4},
		{"single worker", 10, 1},
		{"more workers than items", 3, 8},
		{"uneven split", 101, 4},
		{"zero workers", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := make([]int32, tt.items)
			ParallelizeN(tt.items, tt.workers, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				if h != 1 {
					t.Fatalf("index %d visited %d times", i, h)
				}
			}
		})
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(50, 100, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		if start != 0 || end != 50 {
			t.Errorf("expected single range [0, 50), got [%d, %d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected 1 call below threshold, got %d", calls)
	}

	var total int64
	ParallelizeWithThreshold(20000, 100, func(start, end int) {
		atomic.AddInt64(&total, int64(end-start))
	})
	if total != 20000 {
		t.Errorf("expected 20000 items covered, got %d", total)
	}
}
