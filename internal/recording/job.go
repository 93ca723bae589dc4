package recording

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a recording job. Transitions are
// monotonic: Pending → Writing → Done|Failed (Pending → Failed when the
// snapshot itself fails). Done and Failed are terminal.
type State int

const (
	StatePending State = iota
	StateWriting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Job is one finalized window bound to an output destination and an
// encoding task. Identity and window fields are immutable; only the state
// and the retained error change, under the job's own lock.
type Job struct {
	ID             string
	Source         string
	Start          time.Time
	End            time.Time
	Destination    string
	FinalizedEarly bool

	mu    sync.Mutex
	state State
	err   error
}

func newJob(source string, start, end time.Time, destination string, early bool) *Job {
	return &Job{
		ID:             uuid.New().String(),
		Source:         source,
		Start:          start,
		End:            end,
		Destination:    destination,
		FinalizedEarly: early,
		state:          StatePending,
	}
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure cause, nil unless the job is Failed. The error is
// retained for caller inspection; the recorder never retries on its own.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Window returns the covered duration.
func (j *Job) Window() time.Duration { return j.End.Sub(j.Start) }

func (j *Job) transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() || to <= j.state {
		return fmt.Errorf("recording: invalid job transition %s → %s (job %s)", j.state, to, j.ID)
	}
	j.state = to
	return nil
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = StateFailed
	j.err = err
}
