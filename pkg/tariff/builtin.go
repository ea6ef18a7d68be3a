package tariff

import (
	"slices"
	"time"

	"github.com/raterudder/powerstats/pkg/types"
)

const (
	SchemeCanonical = "canonical"
	SchemeLegacy    = "legacy"
)

// Canonical is the fixed-hour five-period calendar. Its rules partition the
// day so the fallback is never reached.
func Canonical() *Scheme {
	return &Scheme{
		Name: SchemeCanonical,
		Rules: []Rule{
			{Category: types.CategoryEveningOffPeak, Window: types.HourWindow{HourStart: 0, HourEnd: 8}},
			{Category: types.CategoryMorningPeak, Window: types.HourWindow{HourStart: 8, HourEnd: 11}},
			{Category: types.CategoryNoonOffPeak, Window: types.HourWindow{HourStart: 11, HourEnd: 13}},
			{Category: types.CategoryNoonPeak, Window: types.HourWindow{HourStart: 13, HourEnd: 17}},
			{Category: types.CategoryNormal, Window: types.HourWindow{HourStart: 17, HourEnd: 24}},
		},
		Fallback: types.CategoryNormal,
		Headroom: []types.Category{types.CategoryEveningOffPeak, types.CategoryNoonOffPeak},
	}
}

// sharpMonths have a sharp (critical) peak instead of the regular peak.
var sharpMonths = []time.Month{time.January, time.July, time.August, time.November}

func regularMonths() []time.Month {
	var out []time.Month
	for m := time.January; m <= time.December; m++ {
		if !slices.Contains(sharpMonths, m) {
			out = append(out, m)
		}
	}
	return out
}

// Legacy is the older month-dependent calendar with a sharp peak in the
// months of highest demand.
func Legacy() *Scheme {
	regular := regularMonths()
	return &Scheme{
		Name: SchemeLegacy,
		Rules: []Rule{
			{Category: types.CategoryOffPeak, Window: types.HourWindow{HourStart: 0, HourEnd: 8}},
			{Category: types.CategoryOffPeak, Window: types.HourWindow{HourStart: 11, HourEnd: 13}},
			{Category: types.CategorySharp, Window: types.HourWindow{HourStart: 9, HourEnd: 11, Months: sharpMonths}},
			{Category: types.CategorySharp, Window: types.HourWindow{HourStart: 15, HourEnd: 17, Months: sharpMonths}},
			{Category: types.CategoryPeak, Window: types.HourWindow{HourStart: 8, HourEnd: 11, Months: regular}},
			{Category: types.CategoryPeak, Window: types.HourWindow{HourStart: 13, HourEnd: 17, Months: regular}},
		},
		Fallback: types.CategoryOther,
		Headroom: []types.Category{types.CategoryOffPeak},
	}
}
