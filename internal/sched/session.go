package sched

import "time"

// Session is a provisional, possibly-extended time interval awaiting
// finalization into a clip.
//
// Start is set once when the session opens and never moves backward; End
// grows monotonically as further notifications fold in. Values are owned by
// the scheduler until finalization, after which the emitted copy is
// immutable.
type Session struct {
	// Source is the stream this session records.
	Source string

	// Seq orders sessions per source (1-based). Sessions are strictly
	// sequential: Seq n+1 cannot open before Seq n finalized.
	Seq uint64

	// Start of the covered interval: first event time minus the window
	// radius. Immutable once set.
	Start time.Time

	// End of the covered interval: the maximum over all folded events of
	// t + (max_delay or window radius).
	End time.Time

	// Opened is the wall-clock instant the session was created.
	Opened time.Time

	// Events counts the notifications folded into this session.
	Events int

	// FinalizedEarly marks sessions closed by shutdown rather than by the
	// wall clock passing End.
	FinalizedEarly bool
}

// Window returns the covered duration (End - Start).
func (s Session) Window() time.Duration { return s.End.Sub(s.Start) }
