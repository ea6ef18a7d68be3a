// Package timeaxis regularizes sparse meter samples onto a fixed cadence.
package timeaxis

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/raterudder/powerstats/pkg/types"
)

// Interval is the cadence meters log at.
const Interval = 15 * time.Minute

// Dense is a gap-filled, fixed-cadence power array. Values[i] is the power at
// Start + i*Interval; slots without a sample hold 0.
type Dense struct {
	Start    time.Time
	Interval time.Duration
	Values   []float64
}

// Len returns the number of slots.
func (d Dense) Len() int {
	return len(d.Values)
}

// At returns the timestamp of slot i.
func (d Dense) At(i int) time.Time {
	secs := int64(i) * int64(d.Interval/time.Second)
	return time.Unix(d.Start.Unix()+secs, int64(d.Start.Nanosecond())).In(d.Start.Location())
}

// End returns the timestamp of the last slot.
func (d Dense) End() time.Time {
	return d.At(len(d.Values) - 1)
}

// DefaultMaxSlots bounds a series to roughly ten years of 15 minute slots.
const DefaultMaxSlots = 10 * 366 * 24 * 4

type options struct {
	maxSlots int
}

// Option configures Regularize.
type Option func(*options)

// WithMaxSlots overrides DefaultMaxSlots.
func WithMaxSlots(n int) Option {
	return func(o *options) {
		o.maxSlots = n
	}
}

// Regularize lays a sparse series out on a dense array starting at its
// earliest timestamp, multiplying every value by factor. Samples are placed
// in ascending time order, so if two samples fall into the same slot (off-grid
// timestamps) the later one wins.
//
// A series needing more than the slot limit fails with types.ErrSpanTooLarge
// before anything is allocated.
func Regularize(sparse types.SparseSeries, interval time.Duration, factor float64, opts ...Option) (Dense, error) {
	o := options{maxSlots: DefaultMaxSlots}
	for _, opt := range opts {
		opt(&o)
	}

	if len(sparse) == 0 {
		return Dense{}, types.ErrEmptyInput
	}
	if interval < time.Second || interval%time.Second != 0 {
		return Dense{}, fmt.Errorf("invalid interval: %s", interval)
	}
	step := int64(interval / time.Second)

	keys := slices.SortedFunc(maps.Keys(sparse), time.Time.Compare)
	start := keys[0]
	end := keys[len(keys)-1]

	last := slot(start, end, step)
	if last >= int64(o.maxSlots) {
		return Dense{}, fmt.Errorf(
			"%w: %s to %s needs %d slots, the limit is %d",
			types.ErrSpanTooLarge,
			start.Format(types.RecordTimeLayout),
			end.Format(types.RecordTimeLayout),
			last+1,
			o.maxSlots,
		)
	}

	values := make([]float64, last+1)
	for _, k := range keys {
		v := sparse[k] * factor
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Dense{}, &types.MalformedRecordError{
				Field:  "active_power",
				Value:  strconv.FormatFloat(sparse[k], 'g', -1, 64),
				Reason: fmt.Sprintf("scaled by %g is not a finite number", factor),
			}
		}
		values[slot(start, k, step)] = v
	}

	return Dense{
		Start:    start,
		Interval: interval,
		Values:   values,
	}, nil
}

// slot is floor((k-start)/step) for k >= start. It works in whole seconds so
// spans wider than a time.Duration can hold are still indexed correctly.
func slot(start, k time.Time, step int64) int64 {
	secs := k.Unix() - start.Unix()
	idx := secs / step
	// a smaller sub-second part means k is just short of the slot boundary
	if secs%step == 0 && idx > 0 && k.Nanosecond() < start.Nanosecond() {
		idx--
	}
	return idx
}
