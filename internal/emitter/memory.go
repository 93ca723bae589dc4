package emitter

import (
	"context"
	"sync"

	"github.com/visiona/vigia"
)

// Memory keeps posted records in process. For tests and for callers that
// want to inspect the record flow without an external transport.
type Memory struct {
	mu      sync.Mutex
	records []vigia.Record
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory { return &Memory{} }

// Connect implements Backend (no-op).
func (*Memory) Connect(context.Context) error { return nil }

// Post implements Backend.
func (m *Memory) Post(rec vigia.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Close implements Backend (no-op).
func (*Memory) Close() error { return nil }

// Records returns a snapshot of everything posted so far, in order.
func (m *Memory) Records() []vigia.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vigia.Record, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the number of posted records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
