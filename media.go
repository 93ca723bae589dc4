package vigia

import "time"

// MediaBuffer is the read-only view of one unit of media data handed to an
// Extractor. It is only valid for the duration of the Extract call: the
// underlying graph owns the data and reclaims it as soon as the callback
// returns. Extractors that need bytes beyond the call must copy them.
type MediaBuffer interface {
	// Source identifies the stream this buffer belongs to.
	Source() string

	// PTS is the buffer's presentation timestamp (stream position).
	PTS() time.Duration

	// Timestamp is the wall-clock arrival time of the buffer.
	Timestamp() time.Time

	// Bytes is a read-only view of the payload. May be nil for metadata-only
	// buffers. MUST NOT be retained after Extract returns.
	Bytes() []byte
}

// Frame is a decoded video frame retained by the ring buffer.
//
// IMMUTABILITY CONTRACT: Data is shared by reference between the ring buffer
// and clip snapshots. MUST NOT be modified after Append (same zero-copy
// discipline as the extraction path).
type Frame struct {
	// Data contains the raw frame bytes (decoded, ring caps format).
	Data []byte

	// Width of the frame in pixels.
	Width int

	// Height of the frame in pixels.
	Height int

	// Seq is a per-source monotonically increasing sequence number.
	Seq uint64

	// PTS is the presentation timestamp within the stream.
	PTS time.Duration

	// Duration of the frame (1/framerate for constant-rate streams).
	Duration time.Duration

	// Timestamp is the wall-clock capture time. Ring retention and clip
	// windows are evaluated against this clock.
	Timestamp time.Time
}
