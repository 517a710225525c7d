package shift

import (
	"math"
	"time"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// Duration is the production time in minutes between start and end less
// the paused minutes. It is 0 without a start time and is not clamped, so
// a negative value points at bad pause bookkeeping.
func Duration(start *time.Time, end time.Time, pausedMinutes float64) float64 {
	if start == nil {
		return 0
	}
	return end.Sub(*start).Minutes() - pausedMinutes
}

// Efficiency is weight per hour over durationMinutes, rounded to two
// decimals.
func Efficiency(weight, durationMinutes float64) float64 {
	if durationMinutes <= 0 {
		return 0
	}
	return round2(weight / (durationMinutes / 60))
}

// VariantEfficiency applies Efficiency to each variant with the shared
// duration.
func VariantEfficiency(weights types.Variants, durationMinutes float64) types.Variants {
	out := make(types.Variants, len(weights))
	for name, w := range weights {
		out[name] = Efficiency(w, durationMinutes)
	}
	return out
}

// CalculateAllMetrics recomputes Duration and Efficiency from the shift's
// time tracking and filled weights. A shift without an end time is
// measured up to now.
func CalculateAllMetrics(s *types.Shift, now time.Time) {
	end := now
	if s.TimeTracking.ShiftEndTime != nil {
		end = *s.TimeTracking.ShiftEndTime
	}
	s.Duration = Duration(s.TimeTracking.ShiftStartTime, end, s.TimeTracking.ShiftPausedTime)
	s.Efficiency = VariantEfficiency(s.Monitoring.TotalWeightFilled, s.Duration)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// finite maps NaN and infinities, which uninitialised float registers
// decode to, onto 0 so records stay JSON encodable.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
