package gstx

import (
	"testing"
	"time"
)

// TestParseSide covers the config-string mapping and its default.
func TestParseSide(t *testing.T) {
	cases := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"", SideDownstream, false},
		{"downstream", SideDownstream, false},
		{"src", SideDownstream, false},
		{"upstream", SideUpstream, false},
		{"sink", SideUpstream, false},
		{"sideways", 0, true},
	}
	for _, c := range cases {
		got, err := ParseSide(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseSide(%q) should fail", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSide(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSide(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

// TestSidePad verifies the probe targets the right static pad.
func TestSidePad(t *testing.T) {
	if SideDownstream.pad() != "src" {
		t.Errorf("Downstream pad = %q, want src", SideDownstream.pad())
	}
	if SideUpstream.pad() != "sink" {
		t.Errorf("Upstream pad = %q, want sink", SideUpstream.pad())
	}
}

// TestVideoFormatCaps verifies caps strings, including sub-1fps framerates
// expressed as fractions.
func TestVideoFormatCaps(t *testing.T) {
	cases := []struct {
		format VideoFormat
		want   string
	}{
		{
			VideoFormat{Width: 640, Height: 480, FPS: 30, Format: "I420"},
			"video/x-raw,format=I420,width=640,height=480,framerate=30/1",
		},
		{
			VideoFormat{Width: 1280, Height: 720, FPS: 0.5, Format: "NV12"},
			"video/x-raw,format=NV12,width=1280,height=720,framerate=1/2",
		},
	}
	for _, c := range cases {
		if got := c.format.caps(); got != c.want {
			t.Errorf("caps() = %q, want %q", got, c.want)
		}
	}
}

// TestVideoFormatDefaults verifies zero values fill in.
func TestVideoFormatDefaults(t *testing.T) {
	f := VideoFormat{Width: 320, Height: 240}.withDefaults()
	if f.Format != "I420" {
		t.Errorf("Format default = %q", f.Format)
	}
	if f.FPS != 30 {
		t.Errorf("FPS default = %v", f.FPS)
	}
	if f.frameDuration() != time.Second/30 {
		t.Errorf("frameDuration = %v, want %v", f.frameDuration(), time.Second/30)
	}
}
