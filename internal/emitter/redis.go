package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visiona/vigia"
)

// Redis appends records to a Redis stream via XADD, JSON payload under the
// "data" field.
type Redis struct {
	stream string
	client *redis.Client
}

// NewRedis creates the backend from a go-redis connection URI (the ?stream=
// selector already stripped) and the stream key.
func NewRedis(uri, stream string) (*Redis, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("emitter: invalid redis uri: %w", err)
	}
	return &Redis{stream: stream, client: redis.NewClient(opts)}, nil
}

// Connect pings the server.
func (e *Redis) Connect(ctx context.Context) error {
	if err := e.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("emitter: redis ping failed: %w", err)
	}
	return nil
}

// Post implements Backend.
func (e *Redis) Post(rec vigia.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("emitter: encoding record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]any{"data": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("emitter: redis xadd failed: %w", err)
	}
	return nil
}

// Close releases the client.
func (e *Redis) Close() error { return e.client.Close() }
