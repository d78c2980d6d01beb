package models

import (
	"fmt"
	"strings"
	"time"
)

// Presence is whether someone is detected in the monitored space
type Presence string

const (
	PresenceAbsent  Presence = "absent"
	PresencePresent Presence = "present"
)

// ActivityLevel is the ordinal activity index reported by a sensor
type ActivityLevel int

const (
	ActivityNone ActivityLevel = iota
	ActivityLow
	ActivityMedium
	ActivityHigh
)

// Breathing is the detected breathing pattern
type Breathing string

const (
	BreathingNormal    Breathing = "normal"
	BreathingIrregular Breathing = "irregular"
	BreathingRapid     Breathing = "rapid"
	BreathingSlow      Breathing = "slow"
)

const (
	MinAgitation = 0
	MaxAgitation = 100
)

// Reading is one sample from one device at one instant
type Reading struct {
	DeviceID       string        `json:"deviceId"`
	RoomName       string        `json:"roomName"`
	Timestamp      time.Time     `json:"timestamp"`
	Presence       Presence      `json:"presence"`
	ActivityIndex  ActivityLevel `json:"activityIndex"`
	Agitation      int           `json:"agitation"`
	Breathing      Breathing     `json:"breathing"`
	IsDeviceOnline bool          `json:"isDeviceOnline"`
}

// ResetReading returns the canonical reading a device reports after a reset
func ResetReading(deviceID, roomName string, ts time.Time) Reading {
	return Reading{
		DeviceID:       deviceID,
		RoomName:       roomName,
		Timestamp:      ts,
		Presence:       PresenceAbsent,
		ActivityIndex:  ActivityNone,
		Agitation:      0,
		Breathing:      BreathingNormal,
		IsDeviceOnline: true,
	}
}

func (p Presence) Valid() bool {
	return p == PresenceAbsent || p == PresencePresent
}

func (a ActivityLevel) Valid() bool {
	return a >= ActivityNone && a <= ActivityHigh
}

func (a ActivityLevel) String() string {
	switch a {
	case ActivityNone:
		return "none"
	case ActivityLow:
		return "low"
	case ActivityMedium:
		return "medium"
	case ActivityHigh:
		return "high"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

func (b Breathing) Valid() bool {
	switch b {
	case BreathingNormal, BreathingIrregular, BreathingRapid, BreathingSlow:
		return true
	}
	return false
}

// IsAbnormal reports any breathing pattern other than normal
func (b Breathing) IsAbnormal() bool {
	return b != BreathingNormal
}

// deviceIDReserved are the MQTT topic separator and wildcards. Device IDs
// become a topic level, so they may not contain them.
const deviceIDReserved = "/+#"

// ValidateDeviceID checks that id is usable as a single topic level
func ValidateDeviceID(id string) error {
	if id == "" {
		return &ValidationError{Field: "deviceId", Message: "is required"}
	}
	if strings.ContainsAny(id, deviceIDReserved) {
		return &ValidationError{Field: "deviceId", Message: fmt.Sprintf("%q must not contain /, + or #", id)}
	}
	return nil
}

// Validate checks that every enum field holds a known value and agitation is in range
func (r Reading) Validate() error {
	if err := ValidateDeviceID(r.DeviceID); err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "is required"}
	}
	if !r.Presence.Valid() {
		return &ValidationError{Field: "presence", Message: fmt.Sprintf("unknown value %q", r.Presence)}
	}
	if !r.ActivityIndex.Valid() {
		return &ValidationError{Field: "activityIndex", Message: fmt.Sprintf("out of range: %d", r.ActivityIndex)}
	}
	if r.Agitation < MinAgitation || r.Agitation > MaxAgitation {
		return &ValidationError{Field: "agitation", Message: fmt.Sprintf("out of range: %d", r.Agitation)}
	}
	if !r.Breathing.Valid() {
		return &ValidationError{Field: "breathing", Message: fmt.Sprintf("unknown value %q", r.Breathing)}
	}
	return nil
}

// ValidationError represents a malformed reading field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
