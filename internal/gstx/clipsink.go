package gstx

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/visiona/vigia"
	"github.com/visiona/vigia/internal/recording"
)

// clipPipelineTemplate is the standalone encode pipeline for one clip.
// VP8 with deadline=1 trades quality for encode speed, which keeps
// finalization short even for long windows.
const clipPipelineTemplate = "appsrc name=clipsrc" +
	" emit-signals=false is-live=false do-timestamp=false" +
	" stream-type=0 format=time block=true" +
	" caps=%s" +
	" ! vp8enc deadline=1 name=encoder" +
	" ! webmmux name=muxer" +
	" ! filesink location=\"%s\" sync=false"

// DefaultClipTimeout bounds how long one clip encode may take end to end.
const DefaultClipTimeout = 60 * time.Second

// WebmSink encodes finalized window snapshots into standalone WebM files.
// Each Write spins up its own short-lived pipeline, pushes the snapshot
// through it and tears it down on EOS. The live capture pipeline is never
// touched.
type WebmSink struct {
	format  VideoFormat
	timeout time.Duration
}

// NewWebmSink builds the encoder sink. A zero timeout means
// DefaultClipTimeout.
func NewWebmSink(format VideoFormat, timeout time.Duration) *WebmSink {
	if timeout <= 0 {
		timeout = DefaultClipTimeout
	}
	return &WebmSink{format: format.withDefaults(), timeout: timeout}
}

// Write implements recording.ClipSink.
func (s *WebmSink) Write(job *recording.Job, frames []vigia.Frame) error {
	if len(frames) == 0 {
		return fmt.Errorf("gstx: no frames for clip %s", job.ID)
	}
	if err := os.MkdirAll(filepath.Dir(job.Destination), 0o755); err != nil {
		return fmt.Errorf("gstx: creating clip directory: %w", err)
	}

	launch := fmt.Sprintf(clipPipelineTemplate, s.format.caps(), job.Destination)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return fmt.Errorf("gstx: failed to build clip pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	element, err := pipeline.GetElementByName("clipsrc")
	if err != nil {
		return fmt.Errorf("gstx: clip appsrc not found: %w", err)
	}
	src := app.SrcFromElement(element)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstx: failed to start clip pipeline: %w", err)
	}

	started := time.Now()
	if err := s.pushFrames(src, frames); err != nil {
		return err
	}
	if ret := src.EndStream(); ret != gst.FlowOK {
		return fmt.Errorf("gstx: clip eos rejected: %s", ret)
	}

	if err := waitClipEOS(pipeline, s.timeout); err != nil {
		return err
	}

	slog.Info("gstx: clip written",
		"clip_id", job.ID,
		"source", job.Source,
		"destination", job.Destination,
		"frames", len(frames),
		"encode_time", time.Since(started),
	)
	return nil
}

// pushFrames feeds the snapshot into the appsrc with timestamps rebased to
// zero, so the clip plays from its own start rather than the stream's.
func (s *WebmSink) pushFrames(src *app.Source, frames []vigia.Frame) error {
	base := frames[0].PTS
	for i := range frames {
		frame := &frames[i]

		buffer := gst.NewBufferFromBytes(frame.Data)
		buffer.SetPresentationTimestamp(frame.PTS - base)
		duration := frame.Duration
		if duration <= 0 {
			duration = s.format.frameDuration()
		}
		buffer.SetDuration(duration)

		if ret := src.PushBuffer(buffer); ret != gst.FlowOK {
			return fmt.Errorf("gstx: clip push rejected at frame %d: %s", i, ret)
		}
	}
	return nil
}

// waitClipEOS drains the clip pipeline bus until the muxer finishes.
// The deadline guards against an encoder that never emits EOS.
func waitClipEOS(pipeline *gst.Pipeline, timeout time.Duration) error {
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("gstx: clip encode timed out after %s", timeout)
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return nil

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstx: clip pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			return fmt.Errorf("gstx: clip pipeline error: %s", gerr.Error())
		}
	}
}
