package regime

import (
	"fmt"
	"math/rand"

	"github.com/synheart/roomwatch/internal/models"
)

// Regime is a time-of-day behavioural profile
type Regime string

const (
	Night   Regime = "night"
	Morning Regime = "morning"
	Day     Regime = "day"
)

// All lists regimes in the order they occur after midnight
var All = []Regime{Night, Morning, Day}

// Select maps an hour of day to its regime:
// night [22:00, 06:00), morning [06:00, 10:00), day [10:00, 22:00).
func Select(hour int) Regime {
	hour = ((hour % 24) + 24) % 24
	switch {
	case hour >= 22 || hour < 6:
		return Night
	case hour < 10:
		return Morning
	default:
		return Day
	}
}

// ActivityChoice is one weighted outcome for the regime's activity level
type ActivityChoice struct {
	Level  models.ActivityLevel `yaml:"level"`
	Weight float64              `yaml:"weight"`
}

// AgitationRange bounds the agitation random walk
type AgitationRange struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// Profile defines how a regime shapes the generated readings
type Profile struct {
	Activity           []ActivityChoice `yaml:"activity"`
	IrregularBreathing float64          `yaml:"irregular_breathing"`
	Agitation          AgitationRange   `yaml:"agitation"`
}

// Table holds a named set of regime profiles
type Table struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Regimes     map[Regime]*Profile `yaml:"regimes"`
}

// DefaultTable returns the built-in regime table
func DefaultTable() *Table {
	return &Table{
		Name:        "default",
		Description: "Quiet nights, active mornings, mixed daytime activity",
		Regimes: map[Regime]*Profile{
			Night: {
				Activity:           []ActivityChoice{{Level: models.ActivityLow, Weight: 1}},
				IrregularBreathing: 0.1,
				Agitation:          AgitationRange{Min: 0, Max: 30, Step: 5},
			},
			Morning: {
				Activity:  []ActivityChoice{{Level: models.ActivityMedium, Weight: 1}},
				Agitation: AgitationRange{Min: 10, Max: 50, Step: 10},
			},
			Day: {
				Activity: []ActivityChoice{
					{Level: models.ActivityMedium, Weight: 0.3},
					{Level: models.ActivityLow, Weight: 0.7},
				},
				Agitation: AgitationRange{Min: 5, Max: 70, Step: 15},
			},
		},
	}
}

// ProfileAt returns the regime and profile in effect at the given hour
func (t *Table) ProfileAt(hour int) (Regime, *Profile) {
	r := Select(hour)
	return r, t.Regimes[r]
}

// Validate checks every regime is present with sane ranges and weights
func (t *Table) Validate() error {
	for _, r := range All {
		p, ok := t.Regimes[r]
		if !ok || p == nil {
			return fmt.Errorf("regime table %q: missing regime %s", t.Name, r)
		}
		if len(p.Activity) == 0 {
			return fmt.Errorf("regime table %q: %s has no activity choices", t.Name, r)
		}
		total := 0.0
		for _, c := range p.Activity {
			if !c.Level.Valid() {
				return fmt.Errorf("regime table %q: %s has invalid activity level %d", t.Name, r, c.Level)
			}
			if c.Weight < 0 {
				return fmt.Errorf("regime table %q: %s has negative weight", t.Name, r)
			}
			total += c.Weight
		}
		if total <= 0 {
			return fmt.Errorf("regime table %q: %s activity weights sum to zero", t.Name, r)
		}
		if p.IrregularBreathing < 0 || p.IrregularBreathing > 1 {
			return fmt.Errorf("regime table %q: %s irregular_breathing must be in [0,1]", t.Name, r)
		}
		a := p.Agitation
		if a.Min < models.MinAgitation || a.Max > models.MaxAgitation || a.Min > a.Max || a.Step < 0 {
			return fmt.Errorf("regime table %q: %s agitation range [%.0f,%.0f] step %.0f is invalid", t.Name, r, a.Min, a.Max, a.Step)
		}
	}
	return nil
}

// PickActivity draws an activity level according to the profile weights
func (p *Profile) PickActivity(rng *rand.Rand) models.ActivityLevel {
	total := 0.0
	for _, c := range p.Activity {
		total += c.Weight
	}
	if total <= 0 {
		return models.ActivityLow
	}

	r := rng.Float64() * total
	cumulative := 0.0
	for _, c := range p.Activity {
		cumulative += c.Weight
		if r < cumulative {
			return c.Level
		}
	}
	return p.Activity[len(p.Activity)-1].Level
}

// PickBreathing draws the regime's breathing baseline
func (p *Profile) PickBreathing(rng *rand.Rand) models.Breathing {
	if p.IrregularBreathing > 0 && rng.Float64() < p.IrregularBreathing {
		return models.BreathingIrregular
	}
	return models.BreathingNormal
}

// StepAgitation advances the bounded random walk from prev
func (p *Profile) StepAgitation(rng *rand.Rand, prev float64) float64 {
	change := (rng.Float64()*2 - 1) * p.Agitation.Step
	return clamp(prev+change, p.Agitation.Min, p.Agitation.Max)
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
