// Package config loads roomwatch settings from defaults, an optional YAML
// file, a .env file and ROOMWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/synheart/roomwatch/internal/broker"
	"github.com/synheart/roomwatch/internal/encoding"
	"github.com/synheart/roomwatch/internal/generator"
	"github.com/synheart/roomwatch/internal/models"
	"github.com/synheart/roomwatch/internal/notify"
	"github.com/synheart/roomwatch/internal/rules"
	"github.com/synheart/roomwatch/internal/server"
)

// EnvPrefix is the prefix of every environment override, e.g. ROOMWATCH_HTTP_PORT
const EnvPrefix = "ROOMWATCH"

// Config holds all roomwatch configuration
type Config struct {
	Devices    []Device      `mapstructure:"devices"`
	Simulation Simulation    `mapstructure:"simulation"`
	Analysis   Analysis      `mapstructure:"analysis"`
	Logging    Logging       `mapstructure:"logging"`
	HTTP       server.Config `mapstructure:"http"`
	Live       Live          `mapstructure:"live"`
	Notify     Notify        `mapstructure:"notify"`
}

// Device is one monitored room
type Device struct {
	ID   string `mapstructure:"id"`
	Room string `mapstructure:"room"`
}

// Simulation configures the telemetry generators
type Simulation struct {
	Interval time.Duration `mapstructure:"interval"`
	// Seed 0 picks a time-based seed
	Seed int64 `mapstructure:"seed"`
	// Regimes is a built-in table name or a path to a YAML table
	Regimes              string  `mapstructure:"regimes"`
	PresenceProbability  float64 `mapstructure:"presence_probability"`
	EmergencyProbability float64 `mapstructure:"emergency_probability"`
	OfflineProbability   float64 `mapstructure:"offline_probability"`
}

// Probabilities converts the simulation settings for the generator
func (s Simulation) Probabilities() generator.Probabilities {
	return generator.Probabilities{
		Presence:  s.PresenceProbability,
		Emergency: s.EmergencyProbability,
		Offline:   s.OfflineProbability,
	}
}

// Analysis configures the engine
type Analysis struct {
	LiveRetention    time.Duration    `mapstructure:"live_retention"`
	ArchiveRetention time.Duration    `mapstructure:"archive_retention"`
	NotifyTimeout    time.Duration    `mapstructure:"notify_timeout"`
	NotifyQueue      int              `mapstructure:"notify_queue"`
	Thresholds       rules.Thresholds `mapstructure:"thresholds"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Live configures the WebSocket/SSE feed
type Live struct {
	Enabled  bool   `mapstructure:"enabled"`
	Encoding string `mapstructure:"encoding"`
	Buffer   int    `mapstructure:"buffer"`
}

// Notify selects the alert delivery targets
type Notify struct {
	Log      bool             `mapstructure:"log"`
	Redis    RedisNotifier    `mapstructure:"redis"`
	MQTT     MQTTNotifier     `mapstructure:"mqtt"`
	Webhook  WebhookNotifier  `mapstructure:"webhook"`
	Postgres PostgresNotifier `mapstructure:"postgres"`
}

type RedisNotifier struct {
	Enabled            bool `mapstructure:"enabled"`
	notify.RedisConfig `mapstructure:",squash"`
}

type MQTTNotifier struct {
	Enabled         bool   `mapstructure:"enabled"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	PublishReadings bool   `mapstructure:"publish_readings"`
	broker.Config   `mapstructure:",squash"`
}

type WebhookNotifier struct {
	Enabled              bool `mapstructure:"enabled"`
	notify.WebhookConfig `mapstructure:",squash"`
}

type PostgresNotifier struct {
	Enabled               bool `mapstructure:"enabled"`
	notify.PostgresConfig `mapstructure:",squash"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("devices", []map[string]any{
		{"id": "1", "room": "Living Room"},
		{"id": "2", "room": "Bedroom"},
	})

	probabilities := generator.DefaultProbabilities()
	v.SetDefault("simulation.interval", generator.DefaultInterval)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.regimes", "default")
	v.SetDefault("simulation.presence_probability", probabilities.Presence)
	v.SetDefault("simulation.emergency_probability", probabilities.Emergency)
	v.SetDefault("simulation.offline_probability", probabilities.Offline)

	thresholds := rules.DefaultThresholds()
	v.SetDefault("analysis.live_retention", time.Hour)
	v.SetDefault("analysis.archive_retention", 24*time.Hour)
	v.SetDefault("analysis.notify_timeout", 5*time.Second)
	v.SetDefault("analysis.notify_queue", 256)
	v.SetDefault("analysis.thresholds.inactivity", thresholds.Inactivity)
	v.SetDefault("analysis.thresholds.agitation", thresholds.Agitation)
	v.SetDefault("analysis.thresholds.agitation_lookback", thresholds.AgitationLookback)
	v.SetDefault("analysis.thresholds.breathing_count", thresholds.BreathingCount)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("http.host", "127.0.0.1")
	v.SetDefault("http.port", 8787)
	v.SetDefault("http.token", "")
	v.SetDefault("http.accept_gzip", true)

	v.SetDefault("live.enabled", true)
	v.SetDefault("live.encoding", "json")
	v.SetDefault("live.buffer", 256)

	v.SetDefault("notify.log", true)

	v.SetDefault("notify.redis.enabled", false)
	v.SetDefault("notify.redis.addr", "localhost:6379")
	v.SetDefault("notify.redis.password", "")
	v.SetDefault("notify.redis.db", 0)
	v.SetDefault("notify.redis.stream", notify.DefaultStream)
	v.SetDefault("notify.redis.max_len", 10000)

	v.SetDefault("notify.mqtt.enabled", false)
	v.SetDefault("notify.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("notify.mqtt.client_id", "roomwatch")
	v.SetDefault("notify.mqtt.username", "")
	v.SetDefault("notify.mqtt.password", "")
	v.SetDefault("notify.mqtt.timeout", 10*time.Second)
	v.SetDefault("notify.mqtt.topic_prefix", broker.DefaultTopicPrefix)
	v.SetDefault("notify.mqtt.publish_readings", false)

	v.SetDefault("notify.webhook.enabled", false)
	v.SetDefault("notify.webhook.url", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("notify.webhook.access_token", "")
	v.SetDefault("notify.webhook.push_tokens", []string{})
	v.SetDefault("notify.webhook.timeout", 10*time.Second)
	v.SetDefault("notify.webhook.retry_count", 2)

	v.SetDefault("notify.postgres.enabled", false)
	v.SetDefault("notify.postgres.dsn", "postgres://localhost:5432/roomwatch?sslmode=disable")
	v.SetDefault("notify.postgres.max_conns", 5)
	v.SetDefault("notify.postgres.max_idle", 2)
}

// Default returns the configuration with no file and no environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Load reads the configuration. An explicit path must exist; without one,
// roomwatch.yaml is looked up in the working directory and ~/.roomwatch.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("roomwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.roomwatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot type-check
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("config: at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if err := models.ValidateDeviceID(d.ID); err != nil {
			return fmt.Errorf("config: devices[%d]: %w", i, err)
		}
		if seen[d.ID] {
			return fmt.Errorf("config: duplicate device id %q", d.ID)
		}
		seen[d.ID] = true
	}

	if c.Simulation.Interval <= 0 {
		return fmt.Errorf("config: simulation.interval must be positive")
	}
	for name, p := range map[string]float64{
		"presence_probability":  c.Simulation.PresenceProbability,
		"emergency_probability": c.Simulation.EmergencyProbability,
		"offline_probability":   c.Simulation.OfflineProbability,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("config: simulation.%s must be within [0, 1], got %v", name, p)
		}
	}

	if c.Analysis.NotifyQueue < 1 {
		return fmt.Errorf("config: analysis.notify_queue must be at least 1")
	}
	if c.Analysis.Thresholds.AgitationLookback < 1 || c.Analysis.Thresholds.BreathingCount < 1 {
		return fmt.Errorf("config: rule lookbacks must be at least 1")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("config: logging.format must be json or console, got %q", c.Logging.Format)
	}
	if _, err := encoding.ParseFormat(c.Live.Encoding); err != nil {
		return fmt.Errorf("config: live.encoding: %w", err)
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("config: notify.webhook.url is required when the webhook is enabled")
	}
	return nil
}

// DeviceRoom returns the configured room name for id
func (c *Config) DeviceRoom(id string) (string, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d.Room, true
		}
	}
	return "", false
}
