package vigia

import (
	"errors"
	"testing"
	"time"
)

type testBuffer struct {
	source string
	pts    time.Duration
	ts     time.Time
	data   []byte
}

func (b *testBuffer) Source() string       { return b.source }
func (b *testBuffer) PTS() time.Duration   { return b.pts }
func (b *testBuffer) Timestamp() time.Time { return b.ts }
func (b *testBuffer) Bytes() []byte        { return b.data }

// TestRegistryBuiltins verifies a fresh registry resolves the built-in
// extractor and rejects unknown names with typed errors.
func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	ext, err := r.Extractor("buffer-meta")
	if err != nil {
		t.Fatalf("Extractor(buffer-meta) failed: %v", err)
	}
	if ext == nil {
		t.Fatal("Built-in extractor is nil")
	}

	if _, err := r.Extractor("nope"); !errors.Is(err, ErrUnknownExtractor) {
		t.Errorf("Expected ErrUnknownExtractor, got %v", err)
	}
	if _, err := r.Consumer("nope"); !errors.Is(err, ErrUnknownConsumer) {
		t.Errorf("Expected ErrUnknownConsumer, got %v", err)
	}
}

// TestRegistryRegistration verifies custom factories resolve and later
// registrations replace earlier ones.
func TestRegistryRegistration(t *testing.T) {
	r := NewRegistry()

	first := ConsumerFunc(func(Record) error { return errors.New("first") })
	second := ConsumerFunc(func(Record) error { return errors.New("second") })

	r.RegisterConsumer("sink", func() Consumer { return first })
	r.RegisterConsumer("sink", func() Consumer { return second })

	c, err := r.Consumer("sink")
	if err != nil {
		t.Fatalf("Consumer(sink) failed: %v", err)
	}
	if got := c.Consume(Record{}); got.Error() != "second" {
		t.Errorf("Expected replacement binding, got %v", got)
	}
}

// TestBufferMetaFields verifies the built-in extractor captures source, pts,
// arrival time and payload size.
func TestBufferMetaFields(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	buf := &testBuffer{
		source: "cam0",
		pts:    1500 * time.Millisecond,
		ts:     now,
		data:   []byte{1, 2, 3, 4},
	}

	records := BufferMeta{}.Extract(buf)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec[FieldSource] != "cam0" {
		t.Errorf("source = %v", rec[FieldSource])
	}
	if rec[FieldPTS] != int64(1500*time.Millisecond) {
		t.Errorf("pts = %v", rec[FieldPTS])
	}
	if rec[FieldBytes] != 4 {
		t.Errorf("bytes = %v", rec[FieldBytes])
	}
	if _, err := time.Parse(time.RFC3339Nano, rec[FieldTimestamp].(string)); err != nil {
		t.Errorf("timestamp not RFC3339Nano: %v", rec[FieldTimestamp])
	}
}

// TestRecordClone verifies the clone is independent of the original.
func TestRecordClone(t *testing.T) {
	orig := Record{"a": 1, "b": "x"}
	clone := orig.Clone()

	clone["a"] = 2
	clone["c"] = true

	if orig["a"] != 1 {
		t.Errorf("Clone mutation leaked into original: %v", orig["a"])
	}
	if _, ok := orig["c"]; ok {
		t.Error("New key in clone leaked into original")
	}
}
