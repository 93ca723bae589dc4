// Package tap binds an Extractor and a Consumer to a branch point of the
// media graph through a bounded handoff queue.
//
// The streaming thread only ever calls HandleBuffer, which runs the
// extractor in-thread and pushes the resulting records; it never reaches
// into worker or consumer code. Everything downstream of the queue runs on
// the tap's single worker goroutine.
package tap

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/visiona/vigia"
	"github.com/visiona/vigia/internal/handoff"
)

// Options tunes the handoff between extraction and consumption.
type Options struct {
	// Capacity is the queue bound C. Zero means DefaultCapacity.
	Capacity int

	// Policy selects the queue-full behavior.
	Policy handoff.Policy

	// BlockTimeout bounds the streaming-thread wait under PolicyBlock.
	BlockTimeout time.Duration
}

// DefaultCapacity is the queue bound applied when Options leaves it zero.
const DefaultCapacity = 128

// Tap is one installed extraction point.
type Tap struct {
	name      string
	extractor vigia.Extractor
	queue     *handoff.Queue
	worker    *handoff.Worker

	extractErrors atomic.Uint64
	pushErrors    atomic.Uint64
}

// New builds a tap. Construction fails fast on a nil extractor/consumer or
// an unbuildable worker: a tap without a drain must never be installed.
func New(name string, ext vigia.Extractor, cons vigia.Consumer, opts Options) (*Tap, error) {
	if ext == nil {
		return nil, fmt.Errorf("tap %q: nil extractor", name)
	}
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	queue, err := handoff.NewQueue(capacity, opts.Policy, opts.BlockTimeout)
	if err != nil {
		return nil, fmt.Errorf("tap %q: %w", name, err)
	}
	worker, err := handoff.NewWorker(name, queue, cons)
	if err != nil {
		return nil, fmt.Errorf("tap %q: %w", name, err)
	}

	return &Tap{
		name:      name,
		extractor: ext,
		queue:     queue,
		worker:    worker,
	}, nil
}

// Start launches the worker goroutine. Worker startup failure is fatal to
// the caller: proceeding would extract records with no drain.
func (t *Tap) Start(ctx context.Context) error {
	return t.worker.Start(ctx)
}

// HandleBuffer runs the extractor on the streaming thread and pushes each
// produced record. Bounded-time: the worst case is the queue's block
// timeout. Extraction panics are contained here so the graph always gets
// its buffer back.
func (t *Tap) HandleBuffer(buf vigia.MediaBuffer) {
	records := t.extract(buf)
	for _, rec := range records {
		if err := t.queue.Push(rec); err != nil {
			t.pushErrors.Add(1)
			slog.Debug("tap: record dropped",
				"tap", t.name,
				"error", err,
			)
		}
	}
}

func (t *Tap) extract(buf vigia.MediaBuffer) (records []vigia.Record) {
	defer func() {
		if r := recover(); r != nil {
			t.extractErrors.Add(1)
			slog.Error("tap: extractor panicked",
				"tap", t.name,
				"panic", r,
			)
			records = nil
		}
	}()
	return t.extractor.Extract(buf)
}

// Stop cancels the worker and flushes undelivered records to the spool
// (which may be nil). Returns the number of spooled records.
func (t *Tap) Stop(spool *handoff.Spool) (int, error) {
	t.worker.Stop()
	return t.worker.Drain(spool)
}

// Name returns the tap identifier.
func (t *Tap) Name() string { return t.name }

// QueueStats returns the handoff queue counters.
func (t *Tap) QueueStats() handoff.Stats { return t.queue.Stats() }

// ExtractErrors returns the count of contained extractor panics.
func (t *Tap) ExtractErrors() uint64 { return t.extractErrors.Load() }
