package types

import (
	"fmt"
	"slices"
	"time"
)

// Category is the time-of-use tariff period a sample falls in.
type Category string

// Categories of the canonical five-period scheme.
const (
	CategoryEveningOffPeak Category = "evening_off_peak"
	CategoryMorningPeak    Category = "morning_peak"
	CategoryNoonOffPeak    Category = "noon_off_peak"
	CategoryNoonPeak       Category = "noon_peak"
	CategoryNormal         Category = "normal"
)

// Categories of the legacy month-dependent scheme.
const (
	CategoryPeak    Category = "peak"
	CategoryOffPeak Category = "off_peak"
	CategorySharp   Category = "sharp"
	CategoryOther   Category = "other"
)

// HourWindow defines a recurring wall-clock window. Hours are half-open,
// [HourStart, HourEnd). Empty Months or DaysOfTheWeek match every month or
// weekday.
type HourWindow struct {
	HourStart     int            `json:"hourStart" yaml:"hour_start"`
	HourEnd       int            `json:"hourEnd" yaml:"hour_end"`
	Months        []time.Month   `json:"months,omitempty" yaml:"months,omitempty"`
	DaysOfTheWeek []time.Weekday `json:"daysOfTheWeek,omitempty" yaml:"days_of_the_week,omitempty"`
}

// Contains checks if a wall-clock time is within the window. The time's own
// location is used as-is since meter timestamps carry no zone.
func (w HourWindow) Contains(t time.Time) bool {
	if h := t.Hour(); h < w.HourStart || h >= w.HourEnd {
		return false
	}
	if len(w.Months) > 0 && !slices.Contains(w.Months, t.Month()) {
		return false
	}
	if len(w.DaysOfTheWeek) > 0 && !slices.Contains(w.DaysOfTheWeek, t.Weekday()) {
		return false
	}
	return true
}

// Validate reports whether the window can match anything at all.
func (w HourWindow) Validate() error {
	if w.HourStart < 0 || w.HourEnd > 24 || w.HourStart >= w.HourEnd {
		return fmt.Errorf("invalid hour range [%d, %d)", w.HourStart, w.HourEnd)
	}
	for _, m := range w.Months {
		if m < time.January || m > time.December {
			return fmt.Errorf("invalid month: %d", m)
		}
	}
	for _, d := range w.DaysOfTheWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday: %d", d)
		}
	}
	return nil
}
