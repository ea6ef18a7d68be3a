package report

import (
	"fmt"
	"math"

	"github.com/raterudder/powerstats/pkg/types"
)

// EffectiveFactor returns the multiplier applied to every power sample. Only
// a primary-load series is scaled and it must come with a finite factor.
func EffectiveFactor(isPrimaryLoad bool, factor *float64) (float64, error) {
	if !isPrimaryLoad {
		return 1.0, nil
	}
	if factor == nil {
		return 0, types.ErrMissingFactor
	}
	if !isFinite(*factor) {
		return 0, fmt.Errorf("%w: factor must be a finite number", ErrInvalidRequest)
	}
	return *factor, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
