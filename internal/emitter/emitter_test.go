package emitter

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/visiona/vigia"
)

// TestOpenSchemes verifies the factory maps each URI scheme to its backend.
func TestOpenSchemes(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"console:", "*emitter.Console"},
		{"file:///tmp/records.jsonl", "*emitter.File"},
		{"mqtt://localhost:1883?stream=topic", "*emitter.MQTT"},
		{"tcp://localhost:1883?stream=topic", "*emitter.MQTT"},
		{"redis://localhost:6379/0?stream=key", "*emitter.Redis"},
		{"memory://", "*emitter.Memory"},
	}
	for _, c := range cases {
		backend, err := Open(c.uri)
		if err != nil {
			t.Errorf("Open(%q) failed: %v", c.uri, err)
			continue
		}
		if got := typeName(backend); got != c.want {
			t.Errorf("Open(%q) = %s, want %s", c.uri, got, c.want)
		}
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

// TestOpenRequiresStream verifies bus schemes reject URIs without ?stream=.
func TestOpenRequiresStream(t *testing.T) {
	for _, uri := range []string{
		"mqtt://localhost:1883",
		"redis://localhost:6379/0",
	} {
		if _, err := Open(uri); err == nil {
			t.Errorf("Open(%q) should require ?stream=", uri)
		}
	}
}

// TestOpenUnknownScheme verifies unknown schemes fail loudly.
func TestOpenUnknownScheme(t *testing.T) {
	if _, err := Open("kafka://localhost:9092?stream=x"); err == nil {
		t.Error("Open with unsupported scheme should fail")
	}
}

// TestStripStream verifies the stream selector is removed before the
// transport-native parser sees the URI, without mangling other parameters.
func TestStripStream(t *testing.T) {
	cases := []struct {
		uri  string
		keep string
	}{
		{"redis://h:6379/0?stream=key", ""},
		{"redis://h:6379/0?stream=key&db=1", "db=1"},
		{"redis://h:6379/0?db=1&stream=key", "db=1"},
	}
	for _, c := range cases {
		u, err := url.Parse(c.uri)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", c.uri, err)
		}
		got := stripStream(u)

		stripped, err := url.Parse(got)
		if err != nil {
			t.Fatalf("stripStream(%q) = %q, no longer a valid URI: %v", c.uri, got, err)
		}
		if stripped.Query().Has("stream") {
			t.Errorf("stripStream(%q) = %q, still carries stream", c.uri, got)
		}
		if c.keep != "" && stripped.Query().Get("db") != "1" {
			t.Errorf("stripStream(%q) = %q, lost %s", c.uri, got, c.keep)
		}
		if strings.Contains(got, "?&") || strings.HasSuffix(got, "?") {
			t.Errorf("stripStream(%q) = %q, dangling separator", c.uri, got)
		}
	}
}

// TestMemoryBackendOrder verifies the in-process backend retains records in
// post order and snapshots defensively.
func TestMemoryBackendOrder(t *testing.T) {
	m := NewMemory()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := m.Post(vigia.Record{"seq": i}); err != nil {
			t.Fatalf("Post(%d) failed: %v", i, err)
		}
	}

	records := m.Records()
	if len(records) != 5 {
		t.Fatalf("Expected 5 records, got %d", len(records))
	}
	for i, r := range records {
		if r["seq"] != i {
			t.Errorf("Record %d has seq %v", i, r["seq"])
		}
	}

	// Mutating the snapshot must not affect the backend.
	records[0] = vigia.Record{"seq": -1}
	if m.Records()[0]["seq"] != 0 {
		t.Error("Records snapshot shares backing storage")
	}
}

// TestConsumerAdapter verifies the Consumer bridge posts into the backend.
func TestConsumerAdapter(t *testing.T) {
	m := NewMemory()
	c := NewConsumer(m)

	if err := c.Consume(vigia.Record{"k": "v"}); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 record in backend, got %d", m.Len())
	}
}

// TestFileBackendWritesJSONLines verifies one JSON object per line.
func TestFileBackendWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	f := NewFile(path)
	defer f.Close()

	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := f.Post(vigia.Record{"source": "cam0"}); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if err := f.Post(vigia.Record{"source": "cam1"}); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], "cam0") || !strings.Contains(lines[1], "cam1") {
		t.Errorf("Lines out of order or malformed: %q", lines)
	}
}
