package emitter

import (
	"context"
	"encoding/json"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/visiona/vigia"
)

// File appends records as JSON lines to a size-rotated log file.
type File struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

// NewFile creates the file backend writing to path.
func NewFile(path string) *File {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    128, // MB
		MaxBackups: 8,
		Compress:   true,
	}
	return &File{out: out, enc: json.NewEncoder(out)}
}

// Connect implements Backend. lumberjack opens lazily on first write, so
// there is nothing to probe here.
func (*File) Connect(context.Context) error { return nil }

// Post implements Backend.
func (f *File) Post(rec vigia.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(rec)
}

// Close implements Backend.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Close()
}
