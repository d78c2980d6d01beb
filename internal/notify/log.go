package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/models"
)

// Log writes alerts to a structured logger
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log notifier
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs the alert payload at warn level
func (l *Log) Notify(ctx context.Context, alert models.Alert) error {
	payload := alert.Payload()
	l.logger.Warn(payload.Title,
		zap.String("alert_id", alert.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("device_id", alert.DeviceID),
		zap.String("body", payload.Body),
		zap.Any("data", payload.Data),
		zap.Time("triggered_at", alert.Timestamp),
	)
	return nil
}
