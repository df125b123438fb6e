package store

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
)

func TestLane_ExecutesInSubmissionOrder(t *testing.T) {
	lane := NewLane(128)
	defer lane.Close()

	const n = 100
	var order []int

	ctx := context.Background()

	// Park the worker on a blocker op so every following Submit stays queued,
	// then confirm each op is in the FIFO before submitting the next one.
	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = lane.Submit(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	results := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = lane.Submit(ctx, func(ctx context.Context) error {
				order = append(order, i)
				return nil
			})
		}()
		for len(lane.ops) < i+1 {
			runtime.Gosched()
		}
	}

	close(release)
	wg.Wait()

	if len(order) != n {
		t.Fatalf("expected %d executions, got %d", n, len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("expected op %d at position %d, got %d", i, i, got)
		}
	}
	for i, err := range results {
		if err != nil {
			t.Fatalf("op %d failed: %v", i, err)
		}
	}
}

func TestLane_FailureDoesNotBlockSubsequentOps(t *testing.T) {
	lane := NewLane(8)
	defer lane.Close()

	boom := errors.New("boom")
	ctx := context.Background()

	if err := lane.Submit(ctx, func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ran := false
	if err := lane.Submit(ctx, func(ctx context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ran {
		t.Fatalf("expected subsequent op to run after a failure")
	}
}

func TestLane_SingleWriter(t *testing.T) {
	lane := NewLane(64)
	defer lane.Close()

	var inside, maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lane.Submit(ctx, func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one op in flight, saw %d", maxInside)
	}
}

func TestLane_ClosedLaneRejectsSubmit(t *testing.T) {
	lane := NewLane(4)
	lane.Close()

	err := lane.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrLaneClosed) {
		t.Fatalf("expected ErrLaneClosed, got %v", err)
	}
}

func TestLane_CanceledContextSkipsExecution(t *testing.T) {
	lane := NewLane(4)
	defer lane.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := lane.Submit(ctx, func(ctx context.Context) error { ran = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran {
		t.Fatalf("expected op not to run with canceled context")
	}
}
