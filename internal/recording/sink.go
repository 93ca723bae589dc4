package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/vigia"
)

// ClipSink materializes one clip file from a snapshot of frames. The
// recorder calls Write exactly once per job, on the writer goroutine; an
// error marks the job failed with the error retained. Retry policy, if any,
// belongs to the caller.
type ClipSink interface {
	Write(job *Job, frames []vigia.Frame) error
}

// DestinationFunc names the output file for a finalized window.
type DestinationFunc func(source string, start, end time.Time) string

// DefaultDestination names clips <source>_<start>_<shortid>.<ext> under dir.
func DefaultDestination(dir, ext string) DestinationFunc {
	return func(source string, start, _ time.Time) string {
		name := fmt.Sprintf("%s_%s_%s.%s",
			source,
			start.UTC().Format("20060102T150405.000"),
			uuid.New().String()[:8],
			ext,
		)
		return filepath.Join(dir, name)
	}
}

// RawSink writes the frame payloads back-to-back into the destination file,
// no container, no encoder. The zero-dependency sink for headless tests and
// for graphs whose ring branch already carries an encoded elementary stream.
type RawSink struct{}

// Write implements ClipSink.
func (RawSink) Write(job *Job, frames []vigia.Frame) error {
	if err := os.MkdirAll(filepath.Dir(job.Destination), 0o755); err != nil {
		return fmt.Errorf("recording: creating clip directory: %w", err)
	}
	f, err := os.Create(job.Destination)
	if err != nil {
		return fmt.Errorf("recording: creating clip file: %w", err)
	}
	defer f.Close()

	for _, frame := range frames {
		if _, err := f.Write(frame.Data); err != nil {
			return fmt.Errorf("recording: writing clip data: %w", err)
		}
	}
	return f.Sync()
}
