package rules

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/synheart/roomwatch/internal/history"
	"github.com/synheart/roomwatch/internal/models"
)

// ErrorHook observes a rule failure, e.g. to count it
type ErrorHook func(rule string, err error)

// Evaluator runs a set of rules independently against each reading
type Evaluator struct {
	rules      []Rule
	thresholds Thresholds
	logger     *zap.Logger
	onError    ErrorHook
}

// EvaluatorOption customizes an Evaluator
type EvaluatorOption func(*Evaluator)

// WithRules replaces the stock rule set
func WithRules(rules ...Rule) EvaluatorOption {
	return func(e *Evaluator) {
		e.rules = rules
	}
}

// WithLogger sets the logger used for rule failures
func WithLogger(logger *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithErrorHook registers a callback for rule failures
func WithErrorHook(hook ErrorHook) EvaluatorOption {
	return func(e *Evaluator) {
		e.onError = hook
	}
}

// NewEvaluator creates an evaluator running the default rules
func NewEvaluator(th Thresholds, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		rules:      Default(),
		thresholds: th,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the thresholds in use
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate runs every rule against current and its window and returns the
// raised alerts in rule order. A failing or panicking rule is logged and
// skipped; the remaining rules still run.
func (e *Evaluator) Evaluate(current models.Reading, w *history.Window) []models.Alert {
	var alerts []models.Alert
	for _, rule := range e.rules {
		alert, err := e.run(rule, current, w)
		if err != nil {
			e.logger.Warn("Rule evaluation failed",
				zap.String("rule", rule.Name),
				zap.String("device_id", current.DeviceID),
				zap.Error(err),
			)
			if e.onError != nil {
				e.onError(rule.Name, err)
			}
			continue
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func (e *Evaluator) run(rule Rule, current models.Reading, w *history.Window) (alert *models.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			alert = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.Name, r)
		}
	}()
	return rule.Check(current, w, e.thresholds)
}
