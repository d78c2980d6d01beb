package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertKind identifies which rule raised an alert
type AlertKind string

const (
	AlertInactivity         AlertKind = "inactivity"
	AlertHighAgitation      AlertKind = "high-agitation"
	AlertIrregularBreathing AlertKind = "irregular-breathing"
	AlertPresenceChange     AlertKind = "presence-change"
)

// PayloadType is the short type tag carried in the notifier payload
func (k AlertKind) PayloadType() string {
	switch k {
	case AlertInactivity:
		return "inactivity"
	case AlertHighAgitation:
		return "agitation"
	case AlertIrregularBreathing:
		return "breathing"
	case AlertPresenceChange:
		return "presence"
	default:
		return string(k)
	}
}

// AlertContext is the rule-specific part of an alert.
// Implementations: InactivityContext, AgitationContext, BreathingContext,
// PresenceContext and PreviewContext.
type AlertContext interface {
	Kind() AlertKind
	fields() map[string]any
}

type InactivityContext struct {
	Minutes int `json:"minutes"`
}

func (InactivityContext) Kind() AlertKind { return AlertInactivity }
func (c InactivityContext) fields() map[string]any {
	return map[string]any{"minutes": c.Minutes}
}

type AgitationContext struct {
	Current int     `json:"current"`
	Average float64 `json:"average"`
}

func (AgitationContext) Kind() AlertKind { return AlertHighAgitation }
func (c AgitationContext) fields() map[string]any {
	return map[string]any{"current": c.Current, "average": c.Average}
}

type BreathingContext struct {
	Pattern       Breathing `json:"pattern"`
	AbnormalCount int       `json:"abnormalCount"`
}

func (BreathingContext) Kind() AlertKind { return AlertIrregularBreathing }
func (c BreathingContext) fields() map[string]any {
	return map[string]any{"pattern": string(c.Pattern), "abnormalCount": c.AbnormalCount}
}

type PresenceContext struct {
	Previous Presence `json:"previous"`
	Current  Presence `json:"current"`
}

func (PresenceContext) Kind() AlertKind { return AlertPresenceChange }
func (c PresenceContext) fields() map[string]any {
	return map[string]any{"previous": string(c.Previous), "current": string(c.Current)}
}

// PreviewContext carries the free-form data of sample notifications used
// to check a delivery channel end to end.
type PreviewContext struct {
	Type   AlertKind      `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (c PreviewContext) Kind() AlertKind { return c.Type }
func (c PreviewContext) fields() map[string]any {
	return c.Fields
}

// Alert is a fire-and-forget event raised by a rule
type Alert struct {
	ID        string       `json:"id"`
	Kind      AlertKind    `json:"kind"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	DeviceID  string       `json:"deviceId"`
	Location  string       `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
	Context   AlertContext `json:"context"`
}

// NewAlert builds an alert for the reading that triggered it
func NewAlert(reading Reading, title, body string, ctx AlertContext) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Kind:      ctx.Kind(),
		Title:     title,
		Body:      body,
		DeviceID:  reading.DeviceID,
		Location:  reading.RoomName,
		Timestamp: reading.Timestamp,
		Context:   ctx,
	}
}

// NotificationPayload is the shape handed to external alert delivery
type NotificationPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// Payload converts the alert to the notifier payload {title, body, data{type, location, ...}}
func (a Alert) Payload() NotificationPayload {
	data := map[string]any{}
	if a.Context != nil {
		for k, v := range a.Context.fields() {
			data[k] = v
		}
	}
	data["type"] = a.Kind.PayloadType()
	data["location"] = a.Location
	return NotificationPayload{
		Title: a.Title,
		Body:  a.Body,
		Data:  data,
	}
}
