package broker

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/models"
)

// DefaultTopicPrefix roots every topic the service publishes
const DefaultTopicPrefix = "roomwatch"

// ReadingTopic returns the topic readings for deviceID are published on
func ReadingTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/readings", prefix, deviceID)
}

// AlertTopic returns the topic alerts for deviceID are published on
func AlertTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/alerts", prefix, deviceID)
}

// ReadingPublisher mirrors generator readings to MQTT
type ReadingPublisher struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
}

// NewReadingPublisher creates a publisher writing under prefix
func NewReadingPublisher(pub Publisher, prefix string, logger *zap.Logger) *ReadingPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &ReadingPublisher{pub: pub, prefix: prefix, logger: logger}
}

// Publish sends r as JSON with QoS 0. Failures are logged since a reading
// subscriber has no caller to report to.
func (p *ReadingPublisher) Publish(r models.Reading) {
	payload, err := json.Marshal(r)
	if err != nil {
		p.logger.Error("Failed to encode reading", zap.Error(err))
		return
	}
	if err := p.pub.Publish(ReadingTopic(p.prefix, r.DeviceID), 0, false, payload); err != nil {
		p.logger.Warn("Failed to publish reading", zap.String("device_id", r.DeviceID), zap.Error(err))
	}
}
