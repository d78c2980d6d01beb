package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/synheart/roomwatch/internal/models"
)

// DefaultStream is the Redis stream alerts are appended to
const DefaultStream = "roomwatch:alerts"

// RedisConfig holds the Redis stream notifier settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// RedisStream appends every alert to a Redis stream with XADD
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisClient creates a client from cfg
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisStream wraps client. A zero maxLen keeps the stream unbounded.
func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

// Ping checks the connection
func (r *RedisStream) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Notify appends the alert as a stream entry
func (r *RedisStream) Notify(ctx context.Context, alert models.Alert) error {
	payload := alert.Payload()
	data, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("failed to encode alert data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":           alert.ID,
			"kind":         string(alert.Kind),
			"device_id":    alert.DeviceID,
			"location":     alert.Location,
			"title":        payload.Title,
			"body":         payload.Body,
			"data":         string(data),
			"triggered_at": alert.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", r.stream, err)
	}
	return nil
}

// Close closes the Redis client
func (r *RedisStream) Close() error {
	return r.client.Close()
}
