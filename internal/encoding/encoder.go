// Package encoding turns live-feed frames into wire bytes.
package encoding

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/synheart/roomwatch/internal/models"
)

// Format represents the encoding format
type Format string

const (
	FormatJSON     Format = "json"
	FormatProtobuf Format = "protobuf"
)

// ParseFormat maps a flag or config value to a Format
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatProtobuf, "proto":
		return FormatProtobuf, nil
	}
	return "", fmt.Errorf("unknown encoding %q (want json or protobuf)", s)
}

// FrameType tells a consumer what a frame carries
type FrameType string

const (
	FrameReading FrameType = "reading"
	FrameAlert   FrameType = "alert"
)

// Frame is one message on the live feed. Exactly one of Reading and Alert is set.
type Frame struct {
	Type     FrameType       `json:"type"`
	Sequence uint64          `json:"sequence"`
	SentAt   time.Time       `json:"sentAt"`
	Reading  *models.Reading `json:"reading,omitempty"`
	Alert    *models.Alert   `json:"alert,omitempty"`
}

// ReadingFrame wraps a reading
func ReadingFrame(r models.Reading) Frame {
	return Frame{Type: FrameReading, SentAt: time.Now().UTC(), Reading: &r}
}

// AlertFrame wraps an alert
func AlertFrame(a models.Alert) Frame {
	return Frame{Type: FrameAlert, SentAt: time.Now().UTC(), Alert: &a}
}

// DeviceID returns the device the frame belongs to
func (f Frame) DeviceID() string {
	switch {
	case f.Reading != nil:
		return f.Reading.DeviceID
	case f.Alert != nil:
		return f.Alert.DeviceID
	}
	return ""
}

// Encoder encodes frames to bytes
type Encoder interface {
	Encode(frame Frame) ([]byte, error)
	ContentType() string
	Binary() bool
}

// JSONEncoder encodes frames as JSON
type JSONEncoder struct{}

func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

func (e *JSONEncoder) Encode(frame Frame) ([]byte, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	return json.Marshal(frame)
}

func (e *JSONEncoder) ContentType() string {
	return "application/json"
}

func (e *JSONEncoder) Binary() bool {
	return false
}

// NewEncoder creates an encoder for the given format
func NewEncoder(format Format) Encoder {
	switch format {
	case FormatProtobuf:
		return NewProtobufEncoder()
	default:
		return NewJSONEncoder()
	}
}

func checkFrame(frame Frame) error {
	switch frame.Type {
	case FrameReading:
		if frame.Reading == nil {
			return fmt.Errorf("reading frame without reading")
		}
	case FrameAlert:
		if frame.Alert == nil {
			return fmt.Errorf("alert frame without alert")
		}
	default:
		return fmt.Errorf("unknown frame type %q", frame.Type)
	}
	return nil
}
