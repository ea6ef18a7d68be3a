// Package tariff classifies timestamps into time-of-use tariff periods.
//
// A Scheme is an ordered rule table: the first rule whose predicate matches a
// timestamp decides its category and the scheme's fallback applies when none
// do. New calendars are added as new rule tables, either in code or from a
// YAML file, without touching the aggregation code that consumes them.
package tariff

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/raterudder/powerstats/pkg/types"
)

// Rule assigns Category to every timestamp its predicate matches.
type Rule struct {
	Category types.Category   `json:"category" yaml:"category"`
	Window   types.HourWindow `json:"window" yaml:",inline"`
	// Predicate overrides Window when set.
	Predicate func(time.Time) bool `json:"-" yaml:"-"`
}

// Matches reports whether the rule applies to t.
func (r Rule) Matches(t time.Time) bool {
	if r.Predicate != nil {
		return r.Predicate(t)
	}
	return r.Window.Contains(t)
}

// Scheme is a named tariff calendar.
type Scheme struct {
	Name     string           `json:"name" yaml:"name"`
	Rules    []Rule           `json:"rules" yaml:"rules"`
	Fallback types.Category   `json:"fallback" yaml:"fallback"`
	Headroom []types.Category `json:"headroom" yaml:"headroom"`
}

// Classify returns the category of t. It only looks at the wall-clock fields
// of t and never fails.
func (s *Scheme) Classify(t time.Time) types.Category {
	for _, r := range s.Rules {
		if r.Matches(t) {
			return r.Category
		}
	}
	return s.Fallback
}

// HasHeadroom reports whether samples in category c carry a headroom value.
func (s *Scheme) HasHeadroom(c types.Category) bool {
	return slices.Contains(s.Headroom, c)
}

// Categories returns every category the scheme can produce, in rule order
// with the fallback last.
func (s *Scheme) Categories() []types.Category {
	var out []types.Category
	for _, r := range s.Rules {
		if !slices.Contains(out, r.Category) {
			out = append(out, r.Category)
		}
	}
	if s.Fallback != "" && !slices.Contains(out, s.Fallback) {
		out = append(out, s.Fallback)
	}
	return out
}

// Validate checks that the scheme is usable.
func (s *Scheme) Validate() error {
	if s.Name == "" {
		return errors.New("scheme name is required")
	}
	if s.Fallback == "" {
		return fmt.Errorf("scheme %s: fallback category is required", s.Name)
	}
	for i, r := range s.Rules {
		if r.Category == "" {
			return fmt.Errorf("scheme %s: rule %d: category is required", s.Name, i)
		}
		if r.Predicate != nil {
			continue
		}
		if err := r.Window.Validate(); err != nil {
			return fmt.Errorf("scheme %s: rule %d: %w", s.Name, i, err)
		}
	}
	return nil
}
