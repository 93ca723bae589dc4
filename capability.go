package vigia

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Extractor turns one media buffer into zero or more Records.
//
// Contract:
//   - Runs ONLY on the media graph's streaming thread, one call at a time
//   - MUST complete in bounded, short time: the call holds up the graph's
//     ownership of the buffer until it returns
//   - MUST NOT block on locks shared with slow code, I/O, or channels
//   - Returned Records are immutable from this point on
type Extractor interface {
	Extract(buf MediaBuffer) []Record
}

// Consumer receives Records on a background worker goroutine, one at a time,
// in extraction order. It may block for as long as it needs; a slow Consumer
// backs up the handoff queue, never the streaming thread.
//
// A non-nil error marks the Record as failed and is logged; it does not stop
// the worker loop.
type Consumer interface {
	Consume(rec Record) error
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(buf MediaBuffer) []Record

func (f ExtractorFunc) Extract(buf MediaBuffer) []Record { return f(buf) }

// ConsumerFunc adapts a plain function to the Consumer interface.
type ConsumerFunc func(rec Record) error

func (f ConsumerFunc) Consume(rec Record) error { return f(rec) }

var (
	// ErrUnknownExtractor is returned when resolving an unregistered extractor name.
	ErrUnknownExtractor = errors.New("vigia: unknown extractor")

	// ErrUnknownConsumer is returned when resolving an unregistered consumer name.
	ErrUnknownConsumer = errors.New("vigia: unknown consumer")
)

// Registry resolves capability implementations by name, so configuration can
// select an Extractor/Consumer with a single string. Registration is
// process-local and explicit: there is no dynamic code loading.
//
// Thread-safety: all methods safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]func() Extractor
	consumers  map[string]func() Consumer
}

// NewRegistry returns a Registry pre-loaded with the built-in capabilities
// (extractor "buffer-meta").
func NewRegistry() *Registry {
	r := &Registry{
		extractors: make(map[string]func() Extractor),
		consumers:  make(map[string]func() Consumer),
	}
	r.RegisterExtractor("buffer-meta", func() Extractor { return BufferMeta{} })
	return r
}

// RegisterExtractor binds a factory to a name, replacing any previous binding.
func (r *Registry) RegisterExtractor(name string, factory func() Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[name] = factory
}

// RegisterConsumer binds a factory to a name, replacing any previous binding.
func (r *Registry) RegisterConsumer(name string, factory func() Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers[name] = factory
}

// Extractor instantiates the extractor registered under name.
func (r *Registry) Extractor(name string) (Extractor, error) {
	r.mu.RLock()
	factory, ok := r.extractors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}
	return factory(), nil
}

// Consumer instantiates the consumer registered under name.
func (r *Registry) Consumer(name string) (Consumer, error) {
	r.mu.RLock()
	factory, ok := r.consumers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConsumer, name)
	}
	return factory(), nil
}

// BufferMeta is the built-in extractor: one Record per buffer carrying the
// source id, presentation timestamp, arrival time and payload size. Cheap
// enough for any streaming thread.
type BufferMeta struct{}

// Extract implements Extractor.
func (BufferMeta) Extract(buf MediaBuffer) []Record {
	return []Record{{
		FieldSource:    buf.Source(),
		FieldPTS:       int64(buf.PTS()),
		FieldTimestamp: buf.Timestamp().Format(time.RFC3339Nano),
		FieldBytes:     len(buf.Bytes()),
	}}
}
