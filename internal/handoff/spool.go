package handoff

import (
	"encoding/json"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/visiona/vigia"
)

// Spool is the durable fallback for records that were extracted but never
// consumed: one JSON object per line, size-rotated so an abandoned spool
// cannot fill the disk.
type Spool struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

// NewSpool opens (creating if needed) a spool file at path.
func NewSpool(path string) *Spool {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    64, // MB
		MaxBackups: 4,
		Compress:   true,
	}
	return &Spool{
		out: out,
		enc: json.NewEncoder(out),
	}
}

// Append writes one record as a JSON line.
func (s *Spool) Append(rec vigia.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// Close flushes and closes the underlying file.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}
