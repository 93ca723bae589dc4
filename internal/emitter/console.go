package emitter

import (
	"context"
	"log/slog"

	"github.com/visiona/vigia"
)

// Console logs every record through the default slog handler. The default
// backend: zero configuration, useful for smoke tests and piping into
// journald.
type Console struct{}

// NewConsole returns the console backend.
func NewConsole() *Console { return &Console{} }

// Connect implements Backend (no-op).
func (*Console) Connect(context.Context) error { return nil }

// Post implements Backend.
func (*Console) Post(rec vigia.Record) error {
	slog.Info("record", "data", map[string]any(rec))
	return nil
}

// Close implements Backend (no-op).
func (*Console) Close() error { return nil }
