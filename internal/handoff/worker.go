package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/visiona/vigia"
)

// Worker is the single background goroutine draining a Queue into a Consumer.
//
// Goroutine topology:
//   - 1 fixed: run loop (spawned by Start, stopped by Stop)
//
// The loop never dies on consumer misbehavior: errors and panics from
// Consume are logged and the next record is popped. Ordering and the
// exactly-once pop guarantee come from the queue.
type Worker struct {
	name     string
	queue    *Queue
	consumer vigia.Consumer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool

	consumed atomic.Uint64
	failures atomic.Uint64
}

// NewWorker binds a consumer to a queue. A nil consumer is a fatal
// construction error (ErrNilConsumer): records would pile up with no drain.
func NewWorker(name string, queue *Queue, consumer vigia.Consumer) (*Worker, error) {
	if consumer == nil {
		return nil, ErrNilConsumer
	}
	if queue == nil {
		return nil, fmt.Errorf("handoff: nil queue")
	}
	return &Worker{name: name, queue: queue, consumer: consumer}, nil
}

// Start spawns the drain loop. Safe for concurrent calls; only the first
// succeeds.
func (w *Worker) Start(ctx context.Context) error {
	w.startedMu.Lock()
	defer w.startedMu.Unlock()

	if w.started {
		return fmt.Errorf("handoff: worker %q already started", w.name)
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true

	w.wg.Add(1)
	go w.run()
	return nil
}

func (w *Worker) run() {
	defer w.wg.Done()

	slog.Debug("handoff: worker started", "worker", w.name)
	for {
		rec, ok := w.queue.Pop(w.ctx)
		if !ok {
			slog.Debug("handoff: worker stopping",
				"worker", w.name,
				"consumed", w.consumed.Load(),
				"failures", w.failures.Load(),
			)
			return
		}
		w.consumeOne(rec)
	}
}

// consumeOne invokes the consumer with panic isolation. One poisoned record
// must not take the drain loop down with it.
func (w *Worker) consumeOne(rec vigia.Record) {
	defer func() {
		if r := recover(); r != nil {
			w.failures.Add(1)
			slog.Error("handoff: consumer panicked",
				"worker", w.name,
				"panic", r,
			)
		}
	}()

	if err := w.consumer.Consume(rec); err != nil {
		w.failures.Add(1)
		slog.Warn("handoff: consume failed",
			"worker", w.name,
			"error", err,
		)
		return
	}
	w.consumed.Add(1)
}

// Stop cancels the drain loop and waits for it to exit. It does not drain
// the queue; call Drain afterwards to flush leftovers to a spool. Idempotent.
func (w *Worker) Stop() {
	w.startedMu.Lock()
	if !w.started {
		w.startedMu.Unlock()
		return
	}
	w.startedMu.Unlock()

	w.cancel()
	w.wg.Wait()
}

// Drain closes the queue and flushes every undelivered record to the spool.
// Call after Stop; returns the number of records spooled.
func (w *Worker) Drain(spool *Spool) (int, error) {
	w.queue.Close()
	remaining := w.queue.Remaining()
	if len(remaining) == 0 {
		return 0, nil
	}
	if spool == nil {
		slog.Warn("handoff: no spool configured, discarding undelivered records",
			"worker", w.name,
			"count", len(remaining),
		)
		return 0, nil
	}
	for i, rec := range remaining {
		if err := spool.Append(rec); err != nil {
			return i, fmt.Errorf("handoff: spooling undelivered records: %w", err)
		}
	}
	slog.Info("handoff: undelivered records spooled",
		"worker", w.name,
		"count", len(remaining),
	)
	return len(remaining), nil
}

// Consumed returns the number of successfully consumed records.
func (w *Worker) Consumed() uint64 { return w.consumed.Load() }

// Failures returns the number of consume errors and panics.
func (w *Worker) Failures() uint64 { return w.failures.Load() }
