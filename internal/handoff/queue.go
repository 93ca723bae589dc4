package handoff

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/vigia"
)

// DefaultBlockTimeout bounds Push under PolicyBlock when the config does not
// say otherwise. Long enough to absorb a consume hiccup, short enough that a
// stuck consumer cannot stall the streaming thread noticeably.
const DefaultBlockTimeout = 50 * time.Millisecond

// Queue is a bounded FIFO of Records.
//
// Semantics:
//   - Single producer (streaming thread), single consumer (worker goroutine)
//   - Insertion order preserved exactly; every record delivered at most once
//   - Push never waits unbounded (policy-dependent, see Policy)
//
// Backed by a buffered channel: the channel gives FIFO ordering and the
// single-reader pop guarantee for free, the same discipline the frame path
// uses between capture callback and distribution loop.
type Queue struct {
	ch           chan vigia.Record
	policy       Policy
	blockTimeout time.Duration

	pushed    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewQueue creates a queue with the given capacity (must be > 0). A zero
// blockTimeout means DefaultBlockTimeout.
func NewQueue(capacity int, policy Policy, blockTimeout time.Duration) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("handoff: capacity must be > 0, got %d", capacity)
	}
	if blockTimeout <= 0 {
		blockTimeout = DefaultBlockTimeout
	}
	return &Queue{
		ch:           make(chan vigia.Record, capacity),
		policy:       policy,
		blockTimeout: blockTimeout,
		done:         make(chan struct{}),
	}, nil
}

// Push inserts a record, applying the overflow policy when at capacity.
//
// Called from the streaming thread: the worst case is the block timeout
// under PolicyBlock, never an unbounded wait.
func (q *Queue) Push(rec vigia.Record) error {
	if q.closed.Load() {
		q.dropped.Add(1)
		return ErrQueueClosed
	}

	// Fast path: space available.
	select {
	case q.ch <- rec:
		q.pushed.Add(1)
		return nil
	default:
	}

	switch q.policy {
	case PolicyDropOldest:
		return q.pushDropOldest(rec)
	default:
		return q.pushBlocking(rec)
	}
}

func (q *Queue) pushBlocking(rec vigia.Record) error {
	timer := time.NewTimer(q.blockTimeout)
	defer timer.Stop()

	select {
	case q.ch <- rec:
		q.pushed.Add(1)
		return nil
	case <-timer.C:
		q.dropped.Add(1)
		return ErrQueueFull
	case <-q.done:
		q.dropped.Add(1)
		return ErrQueueClosed
	}
}

func (q *Queue) pushDropOldest(rec vigia.Record) error {
	for {
		select {
		case q.ch <- rec:
			q.pushed.Add(1)
			return nil
		default:
		}

		// Evict the head to make room. The worker may race us for it; either
		// way exactly one of us gets each record, so at-most-once delivery
		// holds. An eviction won counts as a drop.
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
			// Worker consumed in between; retry the send.
		}
	}
}

// Pop blocks until a record is available, the context is cancelled, or the
// queue is closed and empty. The second return is false when no record will
// ever be returned again.
//
// Cancellation wins over drain: once ctx is done, Pop returns immediately
// even with records still buffered, so a stopping worker joins after at most
// its in-flight record and the leftovers go to Remaining. Close without
// cancellation keeps the drain: buffered records stay deliverable.
//
// Single-reader operation: only the worker goroutine may call Pop.
func (q *Queue) Pop(ctx context.Context) (vigia.Record, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}

	select {
	case rec := <-q.ch:
		q.delivered.Add(1)
		return rec, true
	default:
	}

	select {
	case rec := <-q.ch:
		q.delivered.Add(1)
		return rec, true
	case <-ctx.Done():
		return nil, false
	case <-q.done:
		// Closed while we waited; pick up anything that slipped in.
		select {
		case rec := <-q.ch:
			q.delivered.Add(1)
			return rec, true
		default:
			return nil, false
		}
	}
}

// Close stops intake. Records already buffered stay available to Pop and
// Remaining. Idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}

// Remaining removes and returns every buffered record, in FIFO order. Used
// by shutdown to flush undelivered records to the durable spool. Must only
// be called once the worker has stopped popping.
func (q *Queue) Remaining() []vigia.Record {
	var out []vigia.Record
	for {
		select {
		case rec := <-q.ch:
			out = append(out, rec)
		default:
			return out
		}
	}
}

// Len returns the number of buffered records.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Stats returns a counter snapshot (non-blocking).
func (q *Queue) Stats() Stats {
	return Stats{
		Pushed:    q.pushed.Load(),
		Delivered: q.delivered.Load(),
		Dropped:   q.dropped.Load(),
	}
}
