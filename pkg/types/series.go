package types

import "time"

const (
	// RecordTimeLayout is the timestamp format of meter export rows.
	RecordTimeLayout = "2006-01-02 15:04:05"
	// CurveTimeLayout is the timestamp format of power curve output, truncated
	// to the minute.
	CurveTimeLayout = "2006-01-02 15:04:00"
	// DateLayout is the format of daily energy output.
	DateLayout = "2006-01-02"
)

// SparseSeries maps a sample timestamp to its active power. Keys are unique;
// when the source repeats a timestamp the row read last replaces the earlier
// one.
type SparseSeries map[time.Time]float64

// PowerPoint is one sample of the regularized power curve.
type PowerPoint struct {
	Time     time.Time
	Category Category
	Value    float64
	// Headroom is RatedCapacity - Value and is only set for categories the
	// tariff scheme marks as off-peak.
	Headroom *float64
}

// DailyEnergy is the energy consumed within the fixed peak windows of one
// calendar day, in kWh when power is in kW.
type DailyEnergy struct {
	Date        time.Time
	MorningPeak float64
	NoonPeak    float64
}
