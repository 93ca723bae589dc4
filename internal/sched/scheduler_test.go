package sched

import (
	"context"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable wall clock shared with the scheduler under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type capture struct {
	mu       sync.Mutex
	sessions []Session
}

func (c *capture) emit(s Session) {
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
}

func (c *capture) all() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

func newTestScheduler(t *testing.T, window time.Duration) (*Scheduler, *fakeClock, *capture) {
	t.Helper()
	clock := &fakeClock{now: base}
	cap := &capture{}
	s, err := New("cam0", Config{Window: window, Poll: 10 * time.Millisecond}, cap.emit)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.SetClock(clock.Now)
	return s, clock, cap
}

// TestSingleEventWindow verifies one event at t yields exactly [t-W, t+W].
func TestSingleEventWindow(t *testing.T) {
	const window = 2 * time.Second
	s, clock, cap := newTestScheduler(t, window)

	eventAt := base.Add(10 * time.Second)
	s.Notify(eventAt, 0)

	if !s.Open() {
		t.Fatal("Session should be open after Notify")
	}

	// Before end: poll must not finalize.
	clock.Set(eventAt.Add(window - time.Millisecond))
	s.Poll()
	if got := cap.all(); len(got) != 0 {
		t.Fatalf("Finalized before end: %+v", got)
	}

	clock.Set(eventAt.Add(window))
	s.Poll()

	got := cap.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(got))
	}
	if !got[0].Start.Equal(eventAt.Add(-window)) {
		t.Errorf("Start = %v, want %v", got[0].Start, eventAt.Add(-window))
	}
	if !got[0].End.Equal(eventAt.Add(window)) {
		t.Errorf("End = %v, want %v", got[0].End, eventAt.Add(window))
	}
	if got[0].Events != 1 {
		t.Errorf("Events = %d, want 1", got[0].Events)
	}
}

// TestOverlappingEventsCoalesce verifies two nearby events merge into one
// session: W=2s, events at 3s and 4s give a single [1s, 6s] window.
func TestOverlappingEventsCoalesce(t *testing.T) {
	s, clock, cap := newTestScheduler(t, 2*time.Second)

	s.Notify(base.Add(3*time.Second), 0)
	s.Notify(base.Add(4*time.Second), 0)

	clock.Set(base.Add(6 * time.Second))
	s.Poll()

	got := cap.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 coalesced session, got %d", len(got))
	}
	if !got[0].Start.Equal(base.Add(1 * time.Second)) {
		t.Errorf("Start = %v, want base+1s", got[0].Start)
	}
	if !got[0].End.Equal(base.Add(6 * time.Second)) {
		t.Errorf("End = %v, want base+6s", got[0].End)
	}
	if got[0].Window() != 5*time.Second {
		t.Errorf("Window = %v, want 5s", got[0].Window())
	}
	if got[0].Events != 2 {
		t.Errorf("Events = %d, want 2", got[0].Events)
	}
}

// TestStartImmutable verifies a later event with an earlier timestamp never
// moves the session start backwards.
func TestStartImmutable(t *testing.T) {
	s, clock, cap := newTestScheduler(t, 2*time.Second)

	s.Notify(base.Add(10*time.Second), 0)
	s.Notify(base.Add(5*time.Second), 0) // late event, earlier t

	clock.Set(base.Add(20 * time.Second))
	s.Poll()

	got := cap.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(got))
	}
	if !got[0].Start.Equal(base.Add(8 * time.Second)) {
		t.Errorf("Start moved to %v, want base+8s from first event", got[0].Start)
	}
}

// TestDisjointEventsTwoSessions verifies events far apart yield two separate
// full windows.
func TestDisjointEventsTwoSessions(t *testing.T) {
	const window = 2 * time.Second
	s, clock, cap := newTestScheduler(t, window)

	s.Notify(base.Add(3*time.Second), 0)
	clock.Set(base.Add(5 * time.Second))
	s.Poll()

	s.Notify(base.Add(30*time.Second), 0)
	clock.Set(base.Add(32 * time.Second))
	s.Poll()

	got := cap.all()
	if len(got) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(got))
	}
	for i, sess := range got {
		if sess.Window() != 2*window {
			t.Errorf("Session %d window = %v, want %v", i, sess.Window(), 2*window)
		}
	}
	if got[1].Seq != got[0].Seq+1 {
		t.Errorf("Sequence numbers not consecutive: %d, %d", got[0].Seq, got[1].Seq)
	}
}

// TestMaxDelayExtendsEnd verifies an explicit max delay wins over the window
// radius for the session end, and end never shrinks.
func TestMaxDelayExtendsEnd(t *testing.T) {
	s, clock, cap := newTestScheduler(t, 2*time.Second)

	eventAt := base.Add(10 * time.Second)
	s.Notify(eventAt, 8*time.Second)
	// A follow-up with a shorter delay must not pull the end in.
	s.Notify(eventAt.Add(time.Second), 0)

	clock.Set(eventAt.Add(8 * time.Second))
	s.Poll()

	got := cap.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(got))
	}
	if !got[0].End.Equal(eventAt.Add(8 * time.Second)) {
		t.Errorf("End = %v, want event+8s", got[0].End)
	}
}

// TestPollIdempotent verifies repeated polls after finalization emit nothing
// further.
func TestPollIdempotent(t *testing.T) {
	s, clock, cap := newTestScheduler(t, time.Second)

	s.Notify(base, 0)
	clock.Set(base.Add(2 * time.Second))
	for i := 0; i < 5; i++ {
		s.Poll()
	}

	if got := cap.all(); len(got) != 1 {
		t.Fatalf("Expected exactly 1 emission, got %d", len(got))
	}
	if s.Open() {
		t.Error("Session still open after finalization")
	}
}

// TestStopFinalizesEarly verifies shutdown emits the open session with
// FinalizedEarly set and the end clamped to the stop instant.
func TestStopFinalizesEarly(t *testing.T) {
	s, clock, cap := newTestScheduler(t, 5*time.Second)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	eventAt := base.Add(10 * time.Second)
	s.Notify(eventAt, 0)

	stopAt := eventAt.Add(time.Second) // well before the natural end
	clock.Set(stopAt)
	s.Stop()

	got := cap.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 early session, got %d", len(got))
	}
	if !got[0].FinalizedEarly {
		t.Error("FinalizedEarly not set")
	}
	if !got[0].End.Equal(stopAt) {
		t.Errorf("End = %v, want clamped to %v", got[0].End, stopAt)
	}
	if !got[0].Start.Equal(eventAt.Add(-5 * time.Second)) {
		t.Errorf("Start = %v, want event-5s", got[0].Start)
	}
}

// TestStopWithoutSessionEmitsNothing verifies a quiet shutdown is silent.
func TestStopWithoutSessionEmitsNothing(t *testing.T) {
	s, _, cap := newTestScheduler(t, time.Second)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()

	if got := cap.all(); len(got) != 0 {
		t.Errorf("Expected no emissions, got %d", len(got))
	}
}

// TestPollLoopFinalizes verifies the background loop finalizes without
// manual polling.
func TestPollLoopFinalizes(t *testing.T) {
	s, clock, cap := newTestScheduler(t, time.Second)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	s.Notify(base, 0)
	clock.Set(base.Add(2 * time.Second))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(cap.all()) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Poll loop never finalized the session")
}

// TestInvalidConfig verifies construction rejects bad knobs.
func TestInvalidConfig(t *testing.T) {
	if _, err := New("cam0", Config{Window: 0, Poll: time.Second}, func(Session) {}); err == nil {
		t.Error("zero window should fail")
	}
	if _, err := New("cam0", Config{Window: time.Second, Poll: 0}, func(Session) {}); err == nil {
		t.Error("zero poll should fail")
	}
	if _, err := New("cam0", Config{Window: time.Second, Poll: time.Second}, nil); err == nil {
		t.Error("nil emit should fail")
	}
}
