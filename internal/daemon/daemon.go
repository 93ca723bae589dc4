// Package daemon assembles the full service from configuration: the media
// graph, one tap per observed source, the record emitter, and optionally
// the rolling-window clip recorder.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/visiona/vigia"
	"github.com/visiona/vigia/internal/config"
	"github.com/visiona/vigia/internal/emitter"
	"github.com/visiona/vigia/internal/gstx"
	"github.com/visiona/vigia/internal/handoff"
	"github.com/visiona/vigia/internal/recording"
	"github.com/visiona/vigia/internal/tap"
)

// Daemon wires configuration into a running service.
//
// Lifecycle: New -> Run (blocks until pipeline failure or ctx cancel) ->
// Shutdown. Run and Shutdown are one-shot.
type Daemon struct {
	cfg      *config.Config
	registry *vigia.Registry

	backend  emitter.Backend
	recorder *recording.Recorder
	spool    *handoff.Spool

	pipeline *gst.Pipeline
	taps     []*tap.Tap
}

// New loads configuration and builds every component that does not require
// the GStreamer runtime. A nil registry gets the built-in capabilities.
func New(configPath string, registry *vigia.Registry) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = vigia.NewRegistry()
	}

	backend, err := emitter.Open(cfg.Emitter.URI)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		registry: registry,
		backend:  backend,
	}

	if cfg.Handoff.SpoolPath != "" {
		d.spool = handoff.NewSpool(cfg.Handoff.SpoolPath)
	}

	if cfg.RecordingEnabled() {
		rec := cfg.Recording
		sink := gstx.NewWebmSink(videoFormat(rec.Video), time.Duration(rec.ClipTimeout)*time.Second)
		recorder, err := recording.New(
			recording.Config{
				Window:  rec.Window(),
				Poll:    rec.Poll(),
				Horizon: rec.Retention(),
			},
			sink,
			recording.DefaultDestination(rec.ClipDir, "webm"),
		)
		if err != nil {
			return nil, err
		}
		for _, src := range cfg.Sources {
			if src.RecordTee == "" {
				continue
			}
			if err := recorder.AddSource(src.ID); err != nil {
				return nil, err
			}
		}
		d.recorder = recorder
	}

	return d, nil
}

func videoFormat(v config.VideoConfig) gstx.VideoFormat {
	return gstx.VideoFormat{
		Width:  v.Width,
		Height: v.Height,
		FPS:    v.FPS,
		Format: v.Format,
	}
}

// Run builds the pipeline, attaches every source and blocks on the bus
// watch. Any startup failure is fatal: a tap without a running worker, or a
// backend that cannot connect, must never observe live buffers.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.backend.Connect(ctx); err != nil {
		return fmt.Errorf("daemon: emitter connect: %w", err)
	}

	pipeline, err := gstx.NewPipeline(d.cfg.Pipeline.Launch)
	if err != nil {
		return err
	}
	d.pipeline = pipeline

	for _, src := range d.cfg.Sources {
		if err := d.attachSource(ctx, src); err != nil {
			return err
		}
	}

	if d.recorder != nil {
		if err := d.recorder.Start(ctx); err != nil {
			return err
		}
	}

	if err := gstx.Play(pipeline); err != nil {
		return err
	}
	slog.Info("daemon: pipeline playing",
		"instance", d.cfg.InstanceID,
		"sources", len(d.cfg.Sources),
		"recording", d.recorder != nil,
	)

	return gstx.WatchBus(ctx, pipeline)
}

// attachSource resolves the source's capabilities, starts its tap and
// installs the probe (plus the ring branch when the source records).
func (d *Daemon) attachSource(ctx context.Context, src config.SourceConfig) error {
	ext, err := d.registry.Extractor(src.Extractor)
	if err != nil {
		return fmt.Errorf("daemon: source %q: %w", src.ID, err)
	}

	cons, err := d.consumerFor(src)
	if err != nil {
		return err
	}

	policy, err := handoff.ParsePolicy(d.cfg.Handoff.Policy)
	if err != nil {
		return fmt.Errorf("daemon: source %q: %w", src.ID, err)
	}
	t, err := tap.New(src.ID, ext, cons, tap.Options{
		Capacity:     d.cfg.Handoff.Capacity,
		Policy:       policy,
		BlockTimeout: time.Duration(d.cfg.Handoff.BlockTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	if err := t.Start(ctx); err != nil {
		return fmt.Errorf("daemon: source %q: worker start: %w", src.ID, err)
	}
	d.taps = append(d.taps, t)

	side, err := gstx.ParseSide(src.Observer.Side)
	if err != nil {
		return fmt.Errorf("daemon: source %q: %w", src.ID, err)
	}
	point := gstx.AttachPoint{Element: src.Observer.Element, Side: side}
	if err := gstx.Attach(d.pipeline, src.ID, point, t); err != nil {
		return err
	}

	if src.RecordTee != "" {
		ring, err := d.recorder.Ring(src.ID)
		if err != nil {
			return err
		}
		format := videoFormat(d.cfg.Recording.Video)
		if err := gstx.BindRing(d.pipeline, src.RecordTee, format, ring); err != nil {
			return err
		}
	}

	slog.Info("daemon: source attached",
		"source", src.ID,
		"element", src.Observer.Element,
		"extractor", src.Extractor,
		"recording", src.RecordTee != "",
	)
	return nil
}

// consumerFor builds the source's record drain: a named registry consumer,
// or the shared emitter when the config leaves it empty. Sources that
// record get the drain wrapped so every delivered record also notifies the
// window scheduler.
func (d *Daemon) consumerFor(src config.SourceConfig) (vigia.Consumer, error) {
	var cons vigia.Consumer
	if src.Consumer != "" {
		c, err := d.registry.Consumer(src.Consumer)
		if err != nil {
			return nil, fmt.Errorf("daemon: source %q: %w", src.ID, err)
		}
		cons = c
	} else {
		cons = emitter.NewConsumer(d.backend)
	}

	if src.RecordTee != "" && d.recorder != nil {
		cons = &notifyingConsumer{
			inner:    cons,
			recorder: d.recorder,
			source:   src.ID,
		}
	}
	return cons, nil
}

// notifyingConsumer forwards each record and then folds its event time into
// the source's recording session. Delivery failures still notify: a record
// the transport lost is still evidence worth a clip.
type notifyingConsumer struct {
	inner    vigia.Consumer
	recorder *recording.Recorder
	source   string
}

func (c *notifyingConsumer) Consume(rec vigia.Record) error {
	err := c.inner.Consume(rec)
	if nerr := c.recorder.Notify(c.source, eventTime(rec), 0); nerr != nil {
		slog.Warn("daemon: record notify failed", "source", c.source, "error", nerr)
	}
	return err
}

// eventTime recovers the record's capture time, falling back to now for
// records that do not carry one.
func eventTime(rec vigia.Record) time.Time {
	if raw, ok := rec[vigia.FieldTimestamp].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts
		}
	}
	return time.Now()
}

// Busy reports whether clip recording still has open sessions or pending
// jobs. Used to decide whether shutdown needs to wait.
func (d *Daemon) Busy() bool {
	return d.recorder != nil && d.recorder.Busy()
}

// ShutdownTimeout returns the configured graceful shutdown budget.
func (d *Daemon) ShutdownTimeout() time.Duration {
	return d.cfg.ShutdownTimeout()
}

// Shutdown tears the service down in dependency order: stop the graph so no
// new buffers arrive, drain the taps (spooling undelivered records), flush
// the recorder, then release the transport. Bounded by ctx: a recorder that
// cannot finish its clips in time is abandoned, its jobs left failed or
// pending on disk state.
func (d *Daemon) Shutdown(ctx context.Context) error {
	gstx.Teardown(d.pipeline)

	for _, t := range d.taps {
		spooled, err := t.Stop(d.spool)
		if err != nil {
			slog.Error("daemon: tap drain failed", "tap", t.Name(), "error", err)
		}
		stats := t.QueueStats()
		slog.Info("daemon: tap stopped",
			"tap", t.Name(),
			"pushed", stats.Pushed,
			"delivered", stats.Delivered,
			"dropped", stats.Dropped,
			"spooled", spooled,
		)
	}

	if d.recorder != nil {
		done := make(chan struct{})
		go func() {
			d.recorder.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Error("daemon: recorder did not stop within shutdown budget")
			return ctx.Err()
		}
	}

	if d.spool != nil {
		if err := d.spool.Close(); err != nil {
			slog.Warn("daemon: spool close failed", "error", err)
		}
	}
	if err := d.backend.Close(); err != nil {
		slog.Warn("daemon: emitter close failed", "error", err)
	}

	slog.Info("daemon: shutdown complete", "instance", d.cfg.InstanceID)
	return nil
}
