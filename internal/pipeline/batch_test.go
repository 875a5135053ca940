package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []BatchOption
		want int
	}{
		{name: "default concurrency", want: DefaultConcurrency},
		{name: "applies WithConcurrency", opts: []BatchOption{WithConcurrency(5)}, want: 5},
		{name: "ignores non-positive concurrency", opts: []BatchOption{WithConcurrency(0)}, want: DefaultConcurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewBatchProcessor(tt.opts...).Concurrency(); got != tt.want {
				t.Errorf("Concurrency() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestProcess tests concurrent processing.
func TestProcess(t *testing.T) {
	t.Parallel()

	t.Run("returns results in input order", func(t *testing.T) {
		t.Parallel()

		items := []int{5, 1, 4, 2, 3}
		got, err := Process(context.Background(), NewBatchProcessor(WithConcurrency(3)), items,
			func(_ context.Context, _ int, n int) int {
				// Later items finish first.
				time.Sleep(time.Duration(n) * time.Millisecond)
				return n * n
			})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if diff := cmp.Diff([]int{25, 1, 16, 4, 9}, got); diff != "" {
			t.Errorf("results mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var inFlight, peak atomic.Int32
		items := make([]int, 12)
		_, err := Process(context.Background(), NewBatchProcessor(WithConcurrency(2)), items,
			func(context.Context, int, int) struct{} {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return struct{}{}
			})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls atomic.Int32
		_, err := Process(ctx, NewBatchProcessor(WithConcurrency(1)), []int{1, 2, 3},
			func(context.Context, int, int) int {
				calls.Add(1)
				return 0
			})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Process() error = %v, want context.Canceled", err)
		}
		if calls.Load() != 0 {
			t.Errorf("fn called %d times after cancellation", calls.Load())
		}
	})
}
