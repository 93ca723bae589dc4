package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/visiona/vigia"
)

// MQTT publishes records to a broker topic, msgpack-encoded.
type MQTT struct {
	broker string
	topic  string
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTT creates the MQTT backend for broker "host:port" posting into topic.
func NewMQTT(broker, topic string) *MQTT {
	return &MQTT{broker: broker, topic: topic}
}

// Connect establishes the broker connection with auto-reconnect enabled.
func (e *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.broker))
	opts.SetClientID(fmt.Sprintf("vigia-%d", time.Now().UnixNano()))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("emitter: mqtt connection established",
			"broker", e.broker,
			"topic", e.topic,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"broker", e.broker,
			"error", err,
		)
	}

	e.client = mqtt.NewClient(opts)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("emitter: mqtt connection timeout (broker %s)", e.broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Post implements Backend: msgpack-encode and publish with a bounded wait.
func (e *MQTT) Post(rec vigia.Record) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	payload, err := msgpack.Marshal(map[string]any(rec))
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: encoding record: %w", err)
	}

	token := e.client.Publish(e.topic, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("emitter: mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: mqtt publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	return nil
}

// Close disconnects with a short grace period.
func (e *MQTT) Close() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
	return nil
}

// Stats returns published/error counters.
func (e *MQTT) Stats() (published, errors uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors
}

func (e *MQTT) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTT) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
