package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/models"
)

// WebhookConfig holds the push webhook settings
type WebhookConfig struct {
	URL         string        `mapstructure:"url"`
	AccessToken string        `mapstructure:"access_token"`
	PushTokens  []string      `mapstructure:"push_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
}

// PushMessage is one message in an Expo-style push request
type PushMessage struct {
	To    string         `json:"to,omitempty"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
	Sound string         `json:"sound,omitempty"`
}

// pushTicket is the per-message delivery status returned by the push service
type pushTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type pushResponse struct {
	Data []pushTicket `json:"data"`
}

// Webhook posts alerts to a push notification HTTP endpoint
type Webhook struct {
	client *resty.Client
	url    string
	tokens []string
	logger *zap.Logger
}

// NewWebhook creates a webhook notifier
func NewWebhook(cfg WebhookConfig, logger *zap.Logger) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.AccessToken != "" {
		client.SetAuthToken(cfg.AccessToken)
	}

	return &Webhook{
		client: client,
		url:    cfg.URL,
		tokens: cfg.PushTokens,
		logger: logger,
	}
}

// Messages builds one push message per registered token, or a single
// untargeted message when no tokens are configured.
func (w *Webhook) Messages(alert models.Alert) []PushMessage {
	payload := alert.Payload()
	base := PushMessage{
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Data,
		Sound: "default",
	}
	if len(w.tokens) == 0 {
		return []PushMessage{base}
	}

	messages := make([]PushMessage, 0, len(w.tokens))
	for _, token := range w.tokens {
		m := base
		m.To = token
		messages = append(messages, m)
	}
	return messages
}

// Notify posts the alert and checks every returned ticket
func (w *Webhook) Notify(ctx context.Context, alert models.Alert) error {
	var result pushResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(w.Messages(alert)).
		SetResult(&result).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push service returned %s", resp.Status())
	}

	for _, ticket := range result.Data {
		if ticket.Status == "error" {
			return fmt.Errorf("push rejected: %s", ticket.Message)
		}
	}

	w.logger.Debug("Push notification sent",
		zap.String("alert_id", alert.ID),
		zap.Int("tickets", len(result.Data)),
	)
	return nil
}
