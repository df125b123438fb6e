package store

import (
	"context"
	"errors"
	"sync"
)

// Lane serializes operations onto one logical execution lane.
//
// Guarantees:
// - At most one submitted operation executes at any instant.
// - Operations execute in exact submission order (strict FIFO).
// - A failed operation fails only its own caller; the lane keeps draining.
//
// The underlying storage engine is safest under single-writer discipline, and
// this lane is the sole concurrency-control mechanism in front of it: no row
// locks, no optimistic retries, no transaction isolation beyond one operation
// at a time.

var ErrLaneClosed = errors.New("store: lane closed")

type laneOp struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

type Lane struct {
	ops chan laneOp

	closeOnce sync.Once
	closed    chan struct{}
	drained   chan struct{}
}

// NewLane starts the lane's single worker. depth bounds how many operations
// may be queued before Submit blocks.
func NewLane(depth int) *Lane {
	if depth <= 0 {
		depth = 64
	}
	l := &Lane{
		ops:     make(chan laneOp, depth),
		closed:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.drained)
	for {
		select {
		case op := <-l.ops:
			l.exec(op)
		case <-l.closed:
			// Drain whatever was accepted before close, then stop.
			for {
				select {
				case op := <-l.ops:
					l.exec(op)
				default:
					return
				}
			}
		}
	}
}

func (l *Lane) exec(op laneOp) {
	// The operation's own context governs its execution; a caller that gave
	// up is still charged for queue position, preserving FIFO order of
	// observable effects.
	if err := op.ctx.Err(); err != nil {
		op.done <- err
		return
	}
	op.done <- op.fn(op.ctx)
}

// Submit enqueues fn and blocks until it has executed, returning its error.
// Submission order is execution order across all callers.
func (l *Lane) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	op := laneOp{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case l.ops <- op:
	case <-l.closed:
		return ErrLaneClosed
	}

	select {
	case err := <-op.done:
		return err
	case <-l.drained:
		// The worker exited; the op may still have been drained just before.
		select {
		case err := <-op.done:
			return err
		default:
			return ErrLaneClosed
		}
	}
}

// Close stops accepting new operations and waits for queued ones to finish.
func (l *Lane) Close() {
	l.closeOnce.Do(func() { close(l.closed) })
	<-l.drained
}
