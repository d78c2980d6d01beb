package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/analysis"
	"github.com/synheart/roomwatch/internal/broker"
	"github.com/synheart/roomwatch/internal/config"
	"github.com/synheart/roomwatch/internal/encoding"
	"github.com/synheart/roomwatch/internal/generator"
	"github.com/synheart/roomwatch/internal/notify"
	"github.com/synheart/roomwatch/internal/regime"
	"github.com/synheart/roomwatch/internal/transport"
)

// appOptions selects which parts of the runtime a command needs
type appOptions struct {
	// deliver alerts through the notifiers enabled in the config
	notifiers bool
	// create the live feed and route alerts to it
	live bool
	// engine clock; nil uses the wall clock
	clock func() time.Time
	// wait for the notifier queue instead of dropping alerts
	backpressure bool
	// extra targets appended after the configured notifiers
	extra []notify.Named
}

// app is the assembled runtime shared by commands
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	engine   *analysis.Engine
	notifier *notify.Multi
	live     *transport.Live
	mqtt     *broker.Client
}

func newApp(ctx context.Context, c *config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:      c,
		logger:   log,
		registry: prometheus.NewRegistry(),
		notifier: notify.NewMulti(),
	}

	if opts.notifiers {
		if err := a.addNotifiers(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.live {
		format, err := encoding.ParseFormat(c.Live.Encoding)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.live = transport.NewLive(encoding.NewEncoder(format), c.Live.Buffer, log, transport.WithRegisterer(a.registry))
		a.notifier.Add("live", a.live.Feed)
	}

	for _, n := range opts.extra {
		a.notifier.Add(n.Name, n.Notifier)
	}

	engineOpts := []analysis.Option{
		analysis.WithNotifier(a.notifier),
		analysis.WithLogger(log),
		analysis.WithRegisterer(a.registry),
	}
	if opts.clock != nil {
		engineOpts = append(engineOpts, analysis.WithClock(opts.clock))
	}
	if opts.backpressure {
		engineOpts = append(engineOpts, analysis.WithDeliveryBackpressure())
	}
	a.engine = analysis.NewEngine(analysis.Config{
		LiveRetention:    c.Analysis.LiveRetention,
		ArchiveRetention: c.Analysis.ArchiveRetention,
		Thresholds:       c.Analysis.Thresholds,
		NotifyTimeout:    c.Analysis.NotifyTimeout,
		NotifyQueue:      c.Analysis.NotifyQueue,
	}, engineOpts...)

	for _, d := range c.Devices {
		a.engine.RegisterDevice(d.ID, d.Room)
	}
	return a, nil
}

// addNotifiers connects every notifier enabled in the config
func (a *app) addNotifiers(ctx context.Context) error {
	n := a.cfg.Notify

	if n.Log {
		a.notifier.Add("log", notify.NewLog(a.logger))
	}

	if n.Redis.Enabled {
		stream := notify.NewRedisStream(notify.NewRedisClient(n.Redis.RedisConfig), n.Redis.Stream, n.Redis.MaxLen)
		if err := stream.Ping(ctx); err != nil {
			stream.Close()
			return fmt.Errorf("redis notifier: %w", err)
		}
		a.notifier.Add("redis", stream)
	}

	if n.MQTT.Enabled {
		client, err := broker.Connect(n.MQTT.Config)
		if err != nil {
			return fmt.Errorf("mqtt notifier: %w", err)
		}
		a.mqtt = client
		a.notifier.Add("mqtt", notify.NewMQTT(client, n.MQTT.TopicPrefix))
	}

	if n.Webhook.Enabled {
		a.notifier.Add("webhook", notify.NewWebhook(n.Webhook.WebhookConfig, a.logger))
	}

	if n.Postgres.Enabled {
		db, err := notify.OpenPostgres(n.Postgres.PostgresConfig)
		if err != nil {
			return fmt.Errorf("postgres notifier: %w", err)
		}
		journal := notify.NewJournal(db)
		if err := journal.EnsureSchema(ctx); err != nil {
			journal.Close()
			return fmt.Errorf("postgres notifier: %w", err)
		}
		a.notifier.Add("postgres", journal)
	}

	a.logger.Debug("Notifiers configured", zap.Strings("targets", a.notifier.Names()))
	return nil
}

// readingPublisher returns the MQTT reading mirror when enabled
func (a *app) readingPublisher() *broker.ReadingPublisher {
	if a.mqtt == nil || !a.cfg.Notify.MQTT.PublishReadings {
		return nil
	}
	return broker.NewReadingPublisher(a.mqtt, a.cfg.Notify.MQTT.TopicPrefix, a.logger)
}

// Close delivers queued alerts, then releases notifier connections. The
// live feed is one of the notifier targets and is closed with them.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if err := a.notifier.Close(); err != nil {
		a.logger.Warn("Failed to close notifiers", zap.Error(err))
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
}

// loadTable resolves a regime table by name or file path. Names are looked
// up in the built-in tables plus any YAML files in the regimes directory.
func loadTable(name string) (*regime.Table, error) {
	if name == "" {
		name = "default"
	}
	if isTableFile(name) {
		return regime.LoadFile(name)
	}

	registry, err := tableRegistry()
	if err != nil {
		return nil, err
	}
	return registry.Get(name)
}

func tableRegistry() (*regime.Registry, error) {
	registry, err := regime.NewBuiltinRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in regime tables: %w", err)
	}
	if dir, ok := getRegimeDir(); ok {
		if err := registry.LoadFromDir(dir); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func isTableFile(name string) bool {
	if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
		return false
	}
	_, err := os.Stat(name)
	return err == nil
}

// buildGenerators creates one generator per configured device. Devices get
// consecutive seeds so their series differ but stay reproducible.
func buildGenerators(c *config.Config, table *regime.Table, log *zap.Logger, clock func() time.Time) []*generator.Generator {
	seed := c.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	opts := []generator.Option{generator.WithLogger(log)}
	if clock != nil {
		opts = append(opts, generator.WithClock(clock))
	}

	gens := make([]*generator.Generator, 0, len(c.Devices))
	for i, d := range c.Devices {
		gens = append(gens, generator.New(generator.Config{
			DeviceID:      d.ID,
			RoomName:      d.Room,
			Seed:          seed + int64(i),
			Table:         table,
			Probabilities: c.Simulation.Probabilities(),
		}, opts...))
	}
	return gens
}
