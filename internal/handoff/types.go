// Package handoff decouples the media graph's streaming thread from
// arbitrarily slow record consumption.
//
// The contract mirrors the rest of the pipeline: a bounded FIFO queue sits
// between exactly one producer (the streaming thread) and exactly one
// consumer (the worker goroutine). The producer never waits unbounded; the
// consumer may block forever without affecting the producer beyond the
// configured push policy.
package handoff

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by Push after Close.
	ErrQueueClosed = errors.New("handoff: queue is closed")

	// ErrQueueFull is returned by Push when the block timeout elapses with
	// the queue still at capacity (PolicyBlock only).
	ErrQueueFull = errors.New("handoff: queue full")

	// ErrNilConsumer is returned by NewWorker when no consumer is attached.
	// Fatal by design: a pipeline with no drain would extract records until
	// the queue fills for good.
	ErrNilConsumer = errors.New("handoff: nil consumer")
)

// Policy defines what Push does when the queue is at capacity.
type Policy int

const (
	// PolicyBlock waits up to the configured timeout for space, then counts
	// the incoming record as dropped. Bounded back-pressure, never deadlock.
	PolicyBlock Policy = iota

	// PolicyDropOldest evicts the oldest undelivered record to make room.
	// The evicted record is counted as dropped and never delivered.
	PolicyDropOldest
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "block":
		return PolicyBlock, nil
	case "drop-oldest":
		return PolicyDropOldest, nil
	default:
		return 0, fmt.Errorf("handoff: unknown push policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyDropOldest:
		return "drop-oldest"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	// Pushed counts records accepted into the queue.
	Pushed uint64

	// Delivered counts records handed to the worker exactly once each.
	Delivered uint64

	// Dropped counts records that will never be delivered: evicted under
	// PolicyDropOldest, timed out under PolicyBlock, or refused after Close.
	Dropped uint64
}
