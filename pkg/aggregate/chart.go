package aggregate

import (
	"fmt"
	"strconv"
	"time"

	"github.com/raterudder/powerstats/pkg/types"
)

// MonthAll disables month filtering.
const MonthAll = "all"

// Series is one chart trace.
type Series struct {
	X []string  `json:"x"`
	Y []float64 `json:"y"`
}

func (s *Series) add(x string, y float64) {
	s.X = append(s.X, x)
	s.Y = append(s.Y, y)
}

// Chart holds the power curve split into one trace per category, one
// headroom trace per off-peak category and the two daily energy traces.
type Chart struct {
	Power       map[types.Category]*Series `json:"power"`
	Headroom    map[types.Category]*Series `json:"headroom"`
	MorningPeak Series                     `json:"morningPeak"`
	NoonPeak    Series                     `json:"noonPeak"`
}

// Split builds a Chart. Every category in categories gets a trace, even an
// empty one, so consumers can rely on a fixed set of keys.
func Split(points []types.PowerPoint, days []types.DailyEnergy, categories []types.Category) Chart {
	c := Chart{
		Power:    make(map[types.Category]*Series, len(categories)),
		Headroom: make(map[types.Category]*Series),
	}
	for _, cat := range categories {
		c.Power[cat] = &Series{X: []string{}, Y: []float64{}}
	}

	for _, p := range points {
		x := p.Time.Format(types.CurveTimeLayout)
		s, ok := c.Power[p.Category]
		if !ok {
			s = &Series{}
			c.Power[p.Category] = s
		}
		s.add(x, p.Value)

		if p.Headroom != nil {
			h, ok := c.Headroom[p.Category]
			if !ok {
				h = &Series{}
				c.Headroom[p.Category] = h
			}
			h.add(x, *p.Headroom)
		}
	}

	for _, d := range days {
		x := d.Date.Format(types.DateLayout)
		c.MorningPeak.add(x, d.MorningPeak)
		c.NoonPeak.add(x, d.NoonPeak)
	}
	return c
}

// ParseMonth accepts "all" (or "") and "01" through "12". It returns 0 for all
// months.
func ParseMonth(s string) (time.Month, error) {
	if s == "" || s == MonthAll {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return 0, fmt.Errorf("invalid month %q: expected %q or 01-12", s, MonthAll)
	}
	return time.Month(n), nil
}

// FilterMonth keeps the points that fall in month m. A zero month keeps
// everything.
func FilterMonth(points []types.PowerPoint, m time.Month) []types.PowerPoint {
	if m == 0 {
		return points
	}
	out := make([]types.PowerPoint, 0, len(points))
	for _, p := range points {
		if p.Time.Month() == m {
			out = append(out, p)
		}
	}
	return out
}

// FilterDaysMonth keeps the days that fall in month m. A zero month keeps
// everything.
func FilterDaysMonth(days []types.DailyEnergy, m time.Month) []types.DailyEnergy {
	if m == 0 {
		return days
	}
	out := make([]types.DailyEnergy, 0, len(days))
	for _, d := range days {
		if d.Date.Month() == m {
			out = append(out, d)
		}
	}
	return out
}
