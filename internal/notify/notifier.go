// Package notify delivers alerts to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/synheart/roomwatch/internal/models"
)

// Notifier delivers an alert to an external channel
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// Func adapts a function to a Notifier
type Func func(ctx context.Context, alert models.Alert) error

// Notify calls f
func (f Func) Notify(ctx context.Context, alert models.Alert) error {
	return f(ctx, alert)
}

// Named pairs a notifier with the channel name used in logs and metrics
type Named struct {
	Name     string
	Notifier Notifier
}

// Multi fans an alert out to several notifiers in order. Every notifier is
// tried even when an earlier one fails.
type Multi struct {
	targets []Named
}

// NewMulti creates a fan-out notifier
func NewMulti(targets ...Named) *Multi {
	return &Multi{targets: targets}
}

// Add appends a notifier
func (m *Multi) Add(name string, n Notifier) {
	m.targets = append(m.targets, Named{Name: name, Notifier: n})
}

// Names lists the configured channels
func (m *Multi) Names() []string {
	names := make([]string, len(m.targets))
	for i, t := range m.targets {
		names[i] = t.Name
	}
	return names
}

// Notify delivers alert to every target and joins their errors
func (m *Multi) Notify(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Notifier.Notify(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every target that holds resources
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.targets {
		if c, ok := t.Notifier.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
