// Package emitter forwards consumed records to an external transport
// selected by a single URI string.
//
// Supported schemes:
//
//	console://                          log records to stdout
//	file:///var/spool/vigia/records.jsonl   durable JSON-lines file (rotated)
//	mqtt://host:1883?stream=topic       MQTT publish, msgpack payload
//	redis://host:6379/0?stream=key      Redis stream XADD, JSON payload
//	memory://                           in-process ring, tests/inspection
//
// The core only requires "accepts one record, returns success/failure";
// everything transport-specific stays behind the Backend interface.
package emitter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/visiona/vigia"
)

// Backend is one record transport.
type Backend interface {
	// Connect ensures the transport is usable. Called once before the first
	// Post; a failure here is a fatal initialization error.
	Connect(ctx context.Context) error

	// Post sends a single record. Called once per record from the worker
	// goroutine; an error counts as a consumption failure (logged upstream,
	// never fatal).
	Post(rec vigia.Record) error

	// Close releases the transport.
	Close() error
}

// Open selects and builds a Backend from its URI. It does not connect.
func Open(uri string) (Backend, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("emitter: invalid uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case "console", "":
		return NewConsole(), nil
	case "file":
		path := u.Path
		if u.Host != "" {
			// file://relative/path parses the first segment as host.
			path = u.Host + path
		}
		if path == "" {
			return nil, fmt.Errorf("emitter: file uri %q has no path", uri)
		}
		return NewFile(path), nil
	case "mqtt", "tcp":
		stream, err := streamParam(u)
		if err != nil {
			return nil, err
		}
		return NewMQTT(u.Host, stream), nil
	case "redis", "rediss":
		stream, err := streamParam(u)
		if err != nil {
			return nil, err
		}
		return NewRedis(stripStream(u), stream)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("emitter: unknown scheme %q in uri %q", u.Scheme, uri)
	}
}

// streamParam extracts the mandatory ?stream= query parameter naming the
// topic/stream to post into.
func streamParam(u *url.URL) (string, error) {
	stream := u.Query().Get("stream")
	if stream == "" {
		return "", fmt.Errorf("emitter: uri %q missing required ?stream= parameter", u.Redacted())
	}
	return stream, nil
}

// stripStream removes the stream parameter so transport-native URI parsers
// (which reject foreign options) accept the remainder. The query is rebuilt,
// not string-edited, so surviving parameters stay well-formed.
func stripStream(u *url.URL) string {
	q := u.Query()
	q.Del("stream")
	stripped := *u
	stripped.RawQuery = q.Encode()
	return stripped.String()
}

// Consumer adapts a Backend to the pipeline's Consumer contract: every
// record popped by the worker is posted to the transport.
type Consumer struct {
	backend Backend
}

// NewConsumer wraps a connected backend.
func NewConsumer(backend Backend) *Consumer {
	return &Consumer{backend: backend}
}

// Consume implements vigia.Consumer.
func (c *Consumer) Consume(rec vigia.Record) error {
	return c.backend.Post(rec)
}
