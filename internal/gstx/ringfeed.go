package gstx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/visiona/vigia"
	"github.com/visiona/vigia/internal/ringbuf"
)

// VideoFormat describes the raw frames flowing through the ring branch.
// The same description configures the clip encoder, so a snapshot can be
// re-encoded without caps renegotiation.
type VideoFormat struct {
	Width  int
	Height int
	FPS    float64
	Format string // raw pixel format, e.g. "I420"
}

func (f VideoFormat) withDefaults() VideoFormat {
	if f.Format == "" {
		f.Format = "I420"
	}
	if f.FPS <= 0 {
		f.FPS = 30
	}
	return f
}

// caps builds the caps string with framerate constraint. Handles fractional
// framerates: 0.5 → 1/2, 5.0 → 5/1.
func (f VideoFormat) caps() string {
	numerator, denominator := 1, 1
	if f.FPS < 1.0 {
		denominator = int(1.0 / f.FPS)
	} else {
		numerator = int(f.FPS)
	}
	return fmt.Sprintf(
		"video/x-raw,format=%s,width=%d,height=%d,framerate=%d/%d",
		f.Format, f.Width, f.Height, numerator, denominator,
	)
}

// frameDuration returns the nominal per-frame duration.
func (f VideoFormat) frameDuration() time.Duration {
	return time.Duration(float64(time.Second) / f.FPS)
}

// BindRing grows a `queue ! capsfilter ! appsink` branch off the named tee
// and feeds every decoded frame into the ring buffer.
//
// The appsink callback copies the frame bytes (GStreamer reuses the buffer)
// and appends with wall-clock timestamps, which is what the window
// scheduler's sessions are evaluated against.
func BindRing(pipeline *gst.Pipeline, teeName string, format VideoFormat, ring *ringbuf.Ring) error {
	format = format.withDefaults()

	tee, err := pipeline.GetElementByName(teeName)
	if err != nil {
		return fmt.Errorf("gstx: tee %q not found in pipeline: %w", teeName, err)
	}

	queue, err := gst.NewElement("queue")
	if err != nil {
		return fmt.Errorf("gstx: failed to create queue: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("gstx: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(format.caps()))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("gstx: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("async", false)

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return onRingSample(sink, format, ring)
		},
	})

	pipeline.AddMany(queue, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(queue, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("gstx: failed to link ring branch: %w", err)
	}
	if err := tee.Link(queue); err != nil {
		return fmt.Errorf("gstx: failed to link tee %q to ring branch: %w", teeName, err)
	}

	queue.SyncStateWithParent()
	capsfilter.SyncStateWithParent()
	appsink.Element.SyncStateWithParent()

	slog.Debug("gstx: ring branch bound",
		"tee", teeName,
		"source", ring.Source(),
		"caps", format.caps(),
	)
	return nil
}

func onRingSample(sink *app.Sink, format VideoFormat, ring *ringbuf.Ring) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample should not kill the branch.
		slog.Warn("gstx: failed to pull sample from ring appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstx: failed to get buffer from ring sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstx: empty ring buffer sample")
		return gst.FlowOK
	}

	// Copy: GStreamer reuses the buffer, the ring retains the frame.
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	duration := buffer.Duration()
	if duration <= 0 {
		duration = format.frameDuration()
	}

	ring.Append(vigia.Frame{
		Data:      frameData,
		Width:     format.Width,
		Height:    format.Height,
		PTS:       buffer.PresentationTimestamp(),
		Duration:  duration,
		Timestamp: time.Now(),
	})
	return gst.FlowOK
}
