// Package recording supervises per-source ring buffers and window
// schedulers and drives the asynchronous encoding of finalized windows.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/visiona/vigia"
	"github.com/visiona/vigia/internal/ringbuf"
	"github.com/visiona/vigia/internal/sched"
)

var (
	// ErrUnknownSource is returned for operations against a source that was
	// never added.
	ErrUnknownSource = errors.New("recording: unknown source")

	// ErrNoFrames marks a job whose window contained no retained frames at
	// finalization time (e.g. a session finalized early before any frame
	// arrived).
	ErrNoFrames = errors.New("recording: no frames in window")

	// ErrWriterBacklog marks a job dropped because the clip writer could not
	// keep up. Finalization never queues unbounded: a clip is worth less
	// than a stalled scheduler.
	ErrWriterBacklog = errors.New("recording: clip writer backlog")
)

// writerQueueCap bounds pending clip writes across all sources. Generous:
// hitting it means the sink is slower than session turnover for a sustained
// stretch.
const writerQueueCap = 64

// DefaultMaxJobHistory bounds how many jobs a long-running recorder keeps
// around for inspection. Terminal jobs past the bound are pruned oldest
// first; open jobs are never pruned.
const DefaultMaxJobHistory = 256

// Config carries the recorder knobs, shared by every source pair.
type Config struct {
	// Window is the radius W applied around each record notification.
	Window time.Duration

	// Poll is the scheduler finalization check interval P.
	Poll time.Duration

	// Horizon is the ring retention H. Must cover the longest achievable
	// open-session duration (validated by config, re-checked here).
	Horizon time.Duration

	// MaxJobHistory caps the retained job list. Zero means
	// DefaultMaxJobHistory.
	MaxJobHistory int
}

type pair struct {
	ring  *ringbuf.Ring
	sched *sched.Scheduler
}

type writeTask struct {
	job  *Job
	ring *ringbuf.Ring
}

// Recorder owns one RingBuffer+WindowScheduler pair per source and fans
// finalized sessions into clip-writing jobs.
//
// Goroutine topology:
//   - 1 poll goroutine per source (owned by each scheduler)
//   - 1 writer goroutine draining finalized windows into the ClipSink
//
// Thread-safety: all public methods safe for concurrent use.
type Recorder struct {
	cfg  Config
	sink ClipSink
	dest DestinationFunc

	mu    sync.Mutex
	pairs map[string]*pair
	jobs  []*Job

	tasks chan writeTask
	wg    sync.WaitGroup

	startedMu sync.Mutex
	started   bool
	stopped   bool
}

// New creates a recorder. The horizon must be at least 2W so a single-event
// window [t-W, t+W] is always retrievable at finalization.
func New(cfg Config, sink ClipSink, dest DestinationFunc) (*Recorder, error) {
	if sink == nil {
		return nil, fmt.Errorf("recording: nil sink")
	}
	if dest == nil {
		return nil, fmt.Errorf("recording: nil destination func")
	}
	if cfg.Horizon < 2*cfg.Window {
		return nil, fmt.Errorf("recording: horizon %v shorter than full window %v", cfg.Horizon, 2*cfg.Window)
	}
	if cfg.MaxJobHistory <= 0 {
		cfg.MaxJobHistory = DefaultMaxJobHistory
	}
	return &Recorder{
		cfg:   cfg,
		sink:  sink,
		dest:  dest,
		pairs: make(map[string]*pair),
		tasks: make(chan writeTask, writerQueueCap),
	}, nil
}

// AddSource creates the ring+scheduler pair for a source. Must be called
// before Start.
func (r *Recorder) AddSource(source string) error {
	r.startedMu.Lock()
	started := r.started
	r.startedMu.Unlock()
	if started {
		return fmt.Errorf("recording: cannot add source %q after start", source)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pairs[source]; exists {
		return fmt.Errorf("recording: source %q already added", source)
	}

	ring, err := ringbuf.New(source, r.cfg.Horizon)
	if err != nil {
		return err
	}
	sc, err := sched.New(source, sched.Config{Window: r.cfg.Window, Poll: r.cfg.Poll}, func(sess sched.Session) {
		r.enqueue(ring, sess)
	})
	if err != nil {
		return err
	}

	r.pairs[source] = &pair{ring: ring, sched: sc}
	return nil
}

// Start launches the schedulers and the clip writer. Scheduler startup
// failure is fatal: a recorder with sources but no finalization would hold
// sessions open forever.
func (r *Recorder) Start(ctx context.Context) error {
	r.startedMu.Lock()
	defer r.startedMu.Unlock()

	if r.started {
		return fmt.Errorf("recording: recorder already started")
	}
	r.started = true

	r.mu.Lock()
	defer r.mu.Unlock()
	for source, p := range r.pairs {
		if err := p.sched.Start(ctx); err != nil {
			return fmt.Errorf("recording: starting scheduler for %q: %w", source, err)
		}
	}

	r.wg.Add(1)
	go r.writerLoop()
	return nil
}

// Append feeds one decoded frame into the source's ring buffer. Called from
// the capture path; bounded-time.
func (r *Recorder) Append(source string, f vigia.Frame) error {
	p, err := r.pair(source)
	if err != nil {
		return err
	}
	p.ring.Append(f)
	return nil
}

// Notify folds a record event for a source into its session state. A
// non-positive maxDelay uses the window radius.
func (r *Recorder) Notify(source string, t time.Time, maxDelay time.Duration) error {
	p, err := r.pair(source)
	if err != nil {
		return err
	}
	p.sched.Notify(t, maxDelay)
	return nil
}

// Ring exposes a source's ring buffer for the capture glue to feed.
func (r *Recorder) Ring(source string) (*ringbuf.Ring, error) {
	p, err := r.pair(source)
	if err != nil {
		return nil, err
	}
	return p.ring, nil
}

func (r *Recorder) pair(source string) (*pair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairs[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return p, nil
}

// enqueue turns a finalized session into a pending job and hands it to the
// writer. Runs on a scheduler poll goroutine, so it must not block: on
// writer backlog the job fails immediately instead of stalling finalization.
func (r *Recorder) enqueue(ring *ringbuf.Ring, sess sched.Session) {
	job := newJob(sess.Source, sess.Start, sess.End, r.dest(sess.Source, sess.Start, sess.End), sess.FinalizedEarly)

	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.pruneJobsLocked()
	r.mu.Unlock()

	select {
	case r.tasks <- writeTask{job: job, ring: ring}:
	default:
		job.fail(ErrWriterBacklog)
		slog.Warn("recording: clip writer backlog, job failed",
			"job", job.ID,
			"source", job.Source,
		)
	}
}

// pruneJobsLocked drops the oldest terminal jobs once the history exceeds
// its cap, so the list stays bounded over the daemon's lifetime. Non-terminal
// jobs always survive: Busy and the writer still depend on them.
func (r *Recorder) pruneJobsLocked() {
	excess := len(r.jobs) - r.cfg.MaxJobHistory
	if excess <= 0 {
		return
	}
	kept := make([]*Job, 0, r.cfg.MaxJobHistory)
	for _, job := range r.jobs {
		if excess > 0 && job.State().Terminal() {
			excess--
			continue
		}
		kept = append(kept, job)
	}
	r.jobs = kept
}

// writerLoop drains finalized windows sequentially, preserving finalization
// order across sources and keeping at most one encode in flight.
func (r *Recorder) writerLoop() {
	defer r.wg.Done()

	for task := range r.tasks {
		r.write(task)
	}
}

func (r *Recorder) write(task writeTask) {
	job := task.job

	frames, err := task.ring.Snapshot(job.Start, job.End)
	if err != nil {
		job.fail(err)
		slog.Error("recording: window snapshot failed",
			"job", job.ID,
			"source", job.Source,
			"error", err,
		)
		return
	}
	if len(frames) == 0 {
		job.fail(ErrNoFrames)
		slog.Warn("recording: empty window, job failed",
			"job", job.ID,
			"source", job.Source,
		)
		return
	}

	if err := job.transition(StateWriting); err != nil {
		// Already failed (backlog race); nothing to write.
		return
	}
	slog.Info("recording: writing clip",
		"job", job.ID,
		"source", job.Source,
		"destination", job.Destination,
		"frames", len(frames),
		"window", job.Window(),
	)

	if err := r.sink.Write(job, frames); err != nil {
		job.fail(fmt.Errorf("recording: sink write: %w", err))
		slog.Error("recording: clip write failed",
			"job", job.ID,
			"destination", job.Destination,
			"error", err,
		)
		return
	}

	if err := job.transition(StateDone); err != nil {
		slog.Error("recording: job transition failed", "job", job.ID, "error", err)
		return
	}
	slog.Info("recording: clip written", "job", job.ID, "destination", job.Destination)
}

// Busy reports whether anything is still recording: the logical OR over all
// sources of "session open" and over all jobs of "not yet terminal".
func (r *Recorder) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.pairs {
		if p.sched.Open() {
			return true
		}
	}
	for _, job := range r.jobs {
		if !job.State().Terminal() {
			return true
		}
	}
	return false
}

// Jobs returns a snapshot of every job created so far, oldest first.
func (r *Recorder) Jobs() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Stop finalizes open sessions early, then drains and stops the clip
// writer. Blocks until every pending clip is written (or failed). Idempotent.
func (r *Recorder) Stop() {
	r.startedMu.Lock()
	if !r.started || r.stopped {
		r.startedMu.Unlock()
		return
	}
	r.stopped = true
	r.startedMu.Unlock()

	r.mu.Lock()
	pairs := make([]*pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		pairs = append(pairs, p)
	}
	r.mu.Unlock()

	// Scheduler Stop emits early-finalized sessions into the task queue, so
	// all schedulers must be stopped before the queue is closed.
	for _, p := range pairs {
		p.sched.Stop()
	}

	close(r.tasks)
	r.wg.Wait()
}
