// Package aggregate derives the tariff-annotated power curve and the daily
// peak-window energy from a regularized power series.
package aggregate

import (
	"time"

	"github.com/raterudder/powerstats/pkg/timeaxis"
	"github.com/raterudder/powerstats/pkg/types"
)

// Classifier maps a timestamp to its tariff category.
type Classifier interface {
	Classify(t time.Time) types.Category
	HasHeadroom(c types.Category) bool
}

// Window is a daily integration window of whole hours from midnight,
// [HourStart, HourEnd).
type Window struct {
	HourStart int
	HourEnd   int
}

var (
	// MorningPeak is 08:00 to 11:00.
	MorningPeak = Window{HourStart: 8, HourEnd: 11}
	// NoonPeak is 13:00 to 17:00.
	NoonPeak = Window{HourStart: 13, HourEnd: 17}
)

// steps returns the window bounds in slots from midnight.
func (w Window) steps(interval time.Duration) (int, int) {
	perHour := int(time.Hour / interval)
	return w.HourStart * perHour, w.HourEnd * perHour
}

// PowerCurve classifies every slot of d and computes the headroom left below
// rated for the categories the classifier marks.
func PowerCurve(d timeaxis.Dense, c Classifier, rated float64) []types.PowerPoint {
	points := make([]types.PowerPoint, d.Len())
	for i, v := range d.Values {
		ts := d.At(i)
		p := types.PowerPoint{
			Time:     ts,
			Category: c.Classify(ts),
			Value:    v,
		}
		if c.HasHeadroom(p.Category) {
			headroom := rated - v
			p.Headroom = &headroom
		}
		points[i] = p
	}
	return points
}

// DailyEnergy integrates the morning and noon peak windows of every calendar
// day from the day of the first slot through the day of the last one.
//
// Window bounds are clamped into [0, len-1] before summing, so a window that
// only partly overlaps the series integrates the overlapping slots and one
// that lies entirely outside of it yields 0.
func DailyEnergy(d timeaxis.Dense) []types.DailyEnergy {
	if d.Len() == 0 {
		return nil
	}

	first := midnight(d.Start)
	last := midnight(d.End())

	var out []types.DailyEnergy
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		offset := floorDiv(day.Sub(d.Start), d.Interval)
		out = append(out, types.DailyEnergy{
			Date:        day,
			MorningPeak: integrate(d, offset, MorningPeak),
			NoonPeak:    integrate(d, offset, NoonPeak),
		})
	}
	return out
}

// integrate is the rectangular integral of w on the day whose midnight sits
// at slot offset. Each slot contributes power * interval hours.
func integrate(d timeaxis.Dense, offset int, w Window) float64 {
	b, e := w.steps(d.Interval)
	begin := clamp(offset+b, 0, d.Len()-1)
	end := clamp(offset+e, 0, d.Len()-1)
	if end <= begin {
		return 0
	}

	var sum float64
	for _, v := range d.Values[begin:end] {
		sum += v
	}
	return sum * d.Interval.Hours()
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// floorDiv divides rounding toward negative infinity; the first day's
// midnight is usually before the first slot.
func floorDiv(a, b time.Duration) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return int(q)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
