// Package ringbuf keeps a rolling, bounded-duration store of recent frames
// for one source, addressable by time range.
//
// The producer side (Append) runs on the capture path and stays O(1)
// amortized; the consumer side (Snapshot) copies frame references out under
// the same short lock, so a clip write never holds up frame intake.
package ringbuf

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/visiona/vigia"
)

// ErrWindowExpired signals a Snapshot over a range the ring no longer
// retains. Structurally prevented by sizing the horizon at least as large as
// the longest achievable recording window (see config validation); hitting
// it at runtime means the sizing rule was violated.
var ErrWindowExpired = errors.New("ringbuf: requested window no longer retained")

// Ring holds the last `horizon` worth of frames for one source.
//
// Retention is evaluated against frame timestamps, newest frame as the
// reference clock: a stalled producer keeps its frames instead of aging them
// out against the wall clock.
//
// Thread-safety: all methods safe for concurrent use; Append is called from
// the streaming thread, Snapshot from clip writers.
type Ring struct {
	source  string
	horizon time.Duration

	mu     sync.Mutex
	frames []vigia.Frame // FIFO, oldest first
	seq    uint64
}

// New creates a ring for source retaining `horizon` of frames.
func New(source string, horizon time.Duration) (*Ring, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("ringbuf: horizon must be > 0, got %v", horizon)
	}
	return &Ring{source: source, horizon: horizon}, nil
}

// Source returns the source id this ring belongs to.
func (r *Ring) Source() string { return r.source }

// Horizon returns the configured retention duration.
func (r *Ring) Horizon() time.Duration { return r.horizon }

// Append stores a frame and evicts everything older than the horizon.
// Assigns the per-source sequence number. Non-blocking beyond the internal
// lock, which is only ever held for pointer shuffling.
func (r *Ring) Append(f vigia.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	f.Seq = r.seq
	r.frames = append(r.frames, f)

	cutoff := f.Timestamp.Add(-r.horizon)
	drop := 0
	for drop < len(r.frames)-1 && r.frames[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		// Copy down instead of re-slicing so evicted frames are released to
		// the GC rather than pinned by the backing array.
		n := copy(r.frames, r.frames[drop:])
		for i := n; i < len(r.frames); i++ {
			r.frames[i] = vigia.Frame{}
		}
		r.frames = r.frames[:n]
	}
}

// Snapshot returns the retained frames with timestamps in [start, end],
// oldest first. Frame data is shared by reference (immutability contract);
// the slice itself is owned by the caller.
//
// Returns ErrWindowExpired when the ring retains nothing at or after start
// up to end - the window has aged out entirely. A window that has partially
// aged out returns the surviving tail.
func (r *Ring) Snapshot(start, end time.Time) ([]vigia.Frame, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("ringbuf: invalid window: end %v before start %v", end, start)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.frames) == 0 {
		return nil, fmt.Errorf("%w: ring empty for source %q", ErrWindowExpired, r.source)
	}
	if end.Before(r.frames[0].Timestamp) {
		return nil, fmt.Errorf("%w: window ends %v before oldest retained frame %v",
			ErrWindowExpired, end, r.frames[0].Timestamp)
	}

	var out []vigia.Frame
	for _, f := range r.frames {
		if f.Timestamp.Before(start) {
			continue
		}
		if f.Timestamp.After(end) {
			break
		}
		out = append(out, f)
	}
	return out, nil
}

// Bounds returns the timestamps of the oldest and newest retained frames.
// ok is false when the ring is empty.
func (r *Ring) Bounds() (oldest, newest time.Time, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return r.frames[0].Timestamp, r.frames[len(r.frames)-1].Timestamp, true
}

// Len returns the number of retained frames.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}
