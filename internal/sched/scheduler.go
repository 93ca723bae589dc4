// Package sched coalesces record notifications into the minimal set of
// finalized time windows.
//
// Each notification is a candidate interval [t-W, t+(max_delay or W)];
// candidates that overlap the currently open session merge into it instead
// of producing a second clip over the same footage. A session closes the
// first time a poll observes the wall clock past its end, which tolerates
// bursts of near-simultaneous events as a single session.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs the per-source session state machine:
//
//	{no open session}
//	   │ Notify(t)                       {session open}
//	   ▼                                    │ Notify(t')  end = max(end, t'+d')
//	{open: start=t−W, end=t+d} ◀────────────┘
//	   │ poll observes wall-clock ≥ end
//	   ▼
//	{finalized → emit, reset to no open session}
//
// Sessions for one source are strictly sequential; a notification either
// extends the open session or opens a fresh one after the prior closed.
//
// Thread-safety: Notify and Poll may be called from any goroutine.
type Scheduler struct {
	source string
	window time.Duration
	poll   time.Duration
	emit   func(Session)

	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time

	mu   sync.Mutex
	open *Session
	seq  uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
}

// Config carries the scheduler knobs.
type Config struct {
	// Window is the radius W: how far before and after an event the clip
	// extends by default.
	Window time.Duration

	// Poll is the interval P between finalization checks.
	Poll time.Duration
}

// New creates a scheduler for one source. emit is invoked exactly once per
// finalized session, on the polling goroutine (or on Stop for early
// finalization); it must not block for long - hand heavy work off.
func New(source string, cfg Config, emit func(Session)) (*Scheduler, error) {
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("sched: window must be > 0, got %v", cfg.Window)
	}
	if cfg.Poll <= 0 {
		return nil, fmt.Errorf("sched: poll interval must be > 0, got %v", cfg.Poll)
	}
	if emit == nil {
		return nil, fmt.Errorf("sched: nil emit callback")
	}
	return &Scheduler{
		source: source,
		window: cfg.Window,
		poll:   cfg.Poll,
		emit:   emit,
		clock:  time.Now,
	}, nil
}

// Notify folds a record event at time t into the session state. A
// non-positive maxDelay means "use the window radius".
//
// Rules:
//   - no open session: open with start=t−W (immutable after), end=t+d
//   - open session: end = max(end, t+d); start never moves, even for events
//     with t before start
func (s *Scheduler) Notify(t time.Time, maxDelay time.Duration) {
	d := maxDelay
	if d <= 0 {
		d = s.window
	}
	candidateEnd := t.Add(d)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		s.seq++
		s.open = &Session{
			Source: s.source,
			Seq:    s.seq,
			Start:  t.Add(-s.window),
			End:    candidateEnd,
			Opened: s.clock(),
			Events: 1,
		}
		slog.Debug("sched: session opened",
			"source", s.source,
			"seq", s.open.Seq,
			"start", s.open.Start,
			"end", s.open.End,
		)
		return
	}

	s.open.Events++
	if candidateEnd.After(s.open.End) {
		s.open.End = candidateEnd
	}
	slog.Debug("sched: session extended",
		"source", s.source,
		"seq", s.open.Seq,
		"end", s.open.End,
		"events", s.open.Events,
	)
}

// Poll finalizes the open session if the wall clock has passed its end.
// Finalizing an already-finalized session is impossible by construction: the
// open pointer is cleared under the lock before emit, so each session is
// emitted exactly once. Safe to call at any time; the poll loop calls it
// every P.
func (s *Scheduler) Poll() {
	s.mu.Lock()
	open := s.open
	if open == nil || s.clock().Before(open.End) {
		s.mu.Unlock()
		return
	}
	s.open = nil
	s.mu.Unlock()

	slog.Debug("sched: session finalized",
		"source", s.source,
		"seq", open.Seq,
		"window", open.Window(),
		"events", open.Events,
	)
	s.emit(*open)
}

// Start spawns the poll loop. Only the first call succeeds.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return fmt.Errorf("sched: scheduler for %q already started", s.source)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.pollLoop()
	return nil
}

func (s *Scheduler) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Stop cancels the poll loop and finalizes any open session early, emitting
// it with FinalizedEarly set so downstream can tell a shutdown clip from a
// naturally closed one. Idempotent.
func (s *Scheduler) Stop() {
	s.startedMu.Lock()
	if !s.started {
		s.startedMu.Unlock()
		return
	}
	s.startedMu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	open := s.open
	s.open = nil
	s.mu.Unlock()

	if open != nil {
		open.FinalizedEarly = true
		// Clamp the window to now: frames past this instant will never exist.
		if now := s.clock(); now.Before(open.End) {
			open.End = now
		}
		slog.Info("sched: session finalized early on shutdown",
			"source", s.source,
			"seq", open.Seq,
			"window", open.Window(),
		)
		s.emit(*open)
	}
}

// Open reports whether a session is currently open.
func (s *Scheduler) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open != nil
}

// SetClock overrides the wall clock source. Tests only.
func (s *Scheduler) SetClock(clock func() time.Time) { s.clock = clock }
