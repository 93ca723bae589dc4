// Package gstx contains every GStreamer-facing piece of the system: pad
// probe attachment, the ring-buffer feed branch, the clip encoder and the
// pipeline bus watch. Core packages never import go-gst; they see only the
// contracts from the root package.
package gstx

import (
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/visiona/vigia"
	"github.com/visiona/vigia/internal/tap"
)

// Side selects which pad of the observed element the probe attaches to.
type Side int

const (
	// SideDownstream probes the element's src pad: buffers that already
	// passed through it.
	SideDownstream Side = iota

	// SideUpstream probes the element's sink pad: buffers about to enter it.
	SideUpstream
)

// ParseSide maps a config string to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "", "downstream", "src":
		return SideDownstream, nil
	case "upstream", "sink":
		return SideUpstream, nil
	default:
		return 0, fmt.Errorf("gstx: unknown side %q", s)
	}
}

func (s Side) pad() string {
	if s == SideUpstream {
		return "sink"
	}
	return "src"
}

// AttachPoint names a branch point in an externally constructed pipeline.
type AttachPoint struct {
	Element string
	Side    Side
}

// probeBuffer adapts one mapped gst buffer to the MediaBuffer contract.
// Valid only inside the probe callback: the mapping is released as soon as
// HandleBuffer returns.
type probeBuffer struct {
	source string
	pts    time.Duration
	ts     time.Time
	data   []byte
}

func (b *probeBuffer) Source() string       { return b.source }
func (b *probeBuffer) PTS() time.Duration   { return b.pts }
func (b *probeBuffer) Timestamp() time.Time { return b.ts }
func (b *probeBuffer) Bytes() []byte        { return b.data }

// Attach installs a buffer probe on the named element that hands every
// buffer to the tap. The probe body is the only code that runs on the
// streaming thread: map, extract, push, unmap, release.
func Attach(pipeline *gst.Pipeline, source string, point AttachPoint, t *tap.Tap) error {
	element, err := pipeline.GetElementByName(point.Element)
	if err != nil {
		return fmt.Errorf("gstx: element %q not found in pipeline: %w", point.Element, err)
	}

	padName := point.Side.pad()
	pad := element.GetStaticPad(padName)
	if pad == nil {
		return fmt.Errorf("gstx: element %q has no static %s pad", point.Element, padName)
	}

	pad.AddProbe(gst.PadProbeTypeBuffer, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buffer := info.GetBuffer()
		if buffer == nil {
			return gst.PadProbeOK
		}

		mapInfo := buffer.Map(gst.MapRead)
		t.HandleBuffer(&probeBuffer{
			source: source,
			pts:    buffer.PresentationTimestamp(),
			ts:     time.Now(),
			data:   mapInfo.Bytes(),
		})
		buffer.Unmap()

		return gst.PadProbeOK
	})
	return nil
}
