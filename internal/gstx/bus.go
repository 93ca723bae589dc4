package gstx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// Init initializes the GStreamer runtime. Call once before any other gstx
// function.
func Init() {
	gst.Init(nil)
}

// NewPipeline parses a gst-launch description into a pipeline. The graph
// itself stays caller-owned configuration; this package only attaches to it.
func NewPipeline(launch string) (*gst.Pipeline, error) {
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("gstx: failed to parse pipeline: %w", err)
	}
	return pipeline, nil
}

// Play transitions the pipeline to PLAYING.
func Play(pipeline *gst.Pipeline) error {
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstx: failed to start pipeline: %w", err)
	}
	return nil
}

// Teardown transitions the pipeline to NULL, releasing its resources.
func Teardown(pipeline *gst.Pipeline) {
	if pipeline == nil {
		return
	}
	if err := pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("gstx: failed to tear down pipeline", "error", err)
	}
}

// WatchBus polls the pipeline bus until the pipeline errors, reaches EOS,
// or the context is cancelled.
//
// Returns nil on cancellation (graceful shutdown) and a non-nil error on
// EOS or pipeline error, so the caller can decide whether to exit or
// rebuild.
func WatchBus(ctx context.Context, pipeline *gst.Pipeline) error {
	if pipeline == nil {
		return fmt.Errorf("gstx: pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstx: context cancelled, stopping bus watch")
			return nil

		default:
			// Short timeout keeps shutdown responsive.
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("gstx: end of stream received")
				return fmt.Errorf("end of stream")

			case gst.MessageError:
				gerr := msg.ParseError()
				slog.Error("gstx: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
				)
				return fmt.Errorf("pipeline error: %s", gerr.Error())

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, next := msg.ParseStateChanged()
					slog.Debug("gstx: pipeline state changed",
						"from", old,
						"to", next,
					)
				}
			}
		}
	}
}
