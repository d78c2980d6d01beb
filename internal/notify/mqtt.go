package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/synheart/roomwatch/internal/broker"
	"github.com/synheart/roomwatch/internal/models"
)

// MQTT publishes alert payloads to a per-device topic with QoS 1
type MQTT struct {
	pub    broker.Publisher
	prefix string
}

// NewMQTT creates an MQTT notifier publishing under prefix
func NewMQTT(pub broker.Publisher, prefix string) *MQTT {
	if prefix == "" {
		prefix = broker.DefaultTopicPrefix
	}
	return &MQTT{pub: pub, prefix: prefix}
}

// Notify publishes the notifier payload as JSON
func (m *MQTT) Notify(ctx context.Context, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(alert.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	return m.pub.Publish(broker.AlertTopic(m.prefix, alert.DeviceID), 1, false, payload)
}
