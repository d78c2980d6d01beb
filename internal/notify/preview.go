package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/synheart/roomwatch/internal/models"
)

// PreviewAlerts returns sample notifications covering each kind of message a
// caregiver can receive. They are used to check a delivery channel.
func PreviewAlerts(now time.Time) []models.Alert {
	preview := func(kind models.AlertKind, location, title, body string, ctx models.AlertContext) models.Alert {
		return models.Alert{
			ID:        uuid.New().String(),
			Kind:      kind,
			Title:     title,
			Body:      body,
			DeviceID:  "preview",
			Location:  location,
			Timestamp: now,
			Context:   ctx,
		}
	}

	return []models.Alert{
		preview(models.AlertInactivity, "Living Room",
			"Inactivity Alert",
			"No movement detected in Living Room for 30 minutes. Tap to check the status.",
			models.InactivityContext{Minutes: 30}),
		preview("fall", "Bedroom",
			"Fall Detected",
			"Possible fall detected in Bedroom. Emergency contacts will be notified if no response.",
			models.PreviewContext{Type: "fall"}),
		preview("temperature", "",
			"Temperature Alert",
			"Room temperature is too high (29°C). Consider adjusting the thermostat.",
			models.PreviewContext{Type: "temperature", Fields: map[string]any{"value": 29}}),
		preview("device", "Living Room",
			"Device Offline",
			"Living Room sensor is offline. Please check the device connection.",
			models.PreviewContext{Type: "device", Fields: map[string]any{"status": "offline"}}),
		preview("contact", "",
			"Emergency Contact Update",
			"Emergency contact John Doe has been notified about the recent alert.",
			models.PreviewContext{Type: "contact", Fields: map[string]any{"action": "notified"}}),
	}
}

// SendPreviews delivers every preview alert through n and stops at the first failure
func SendPreviews(ctx context.Context, n Notifier, now time.Time) (int, error) {
	alerts := PreviewAlerts(now)
	for i, alert := range alerts {
		if err := n.Notify(ctx, alert); err != nil {
			return i, fmt.Errorf("preview %q: %w", alert.Title, err)
		}
	}
	return len(alerts), nil
}
