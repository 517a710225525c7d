package shift

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

func TestDuration(t *testing.T) {
	start := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.0, Duration(nil, start, 0))
	assert.InDelta(t, 90.0, Duration(&start, start.Add(2*time.Hour), 30), 1e-9)
	assert.InDelta(t, -10.0, Duration(&start, start.Add(20*time.Minute), 30), 1e-9, "negative durations are not clamped")
}

func TestEfficiency(t *testing.T) {
	assert.Equal(t, 0.0, Efficiency(100, 0))
	assert.Equal(t, 0.0, Efficiency(100, -5))
	assert.Equal(t, 200.0, Efficiency(100, 30))
	assert.Equal(t, 33.33, Efficiency(100, 180))
}

func TestVariantEfficiency(t *testing.T) {
	got := VariantEfficiency(types.Variants{"onion": 50, "garlic": 25}, 60)
	assert.Equal(t, types.Variants{"onion": 50, "garlic": 25}, got)

	got = VariantEfficiency(types.Variants{"onion": 50, "garlic": 25}, 0)
	assert.Equal(t, types.Variants{"onion": 0, "garlic": 0}, got)
}

func TestCalculateAllMetrics(t *testing.T) {
	start := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	end := start.Add(70 * time.Minute)
	s := &types.Shift{
		Monitoring:   types.MonitoringData{TotalWeightFilled: types.Variants{"total": 120}},
		TimeTracking: types.TimeTracking{ShiftStartTime: &start, ShiftEndTime: &end, ShiftPausedTime: 10},
	}

	CalculateAllMetrics(s, start.Add(5*time.Hour))
	assert.InDelta(t, 60.0, s.Duration, 1e-9)
	assert.Equal(t, types.Variants{"total": 120}, s.Efficiency)

	s.TimeTracking.ShiftEndTime = nil
	CalculateAllMetrics(s, start.Add(130*time.Minute))
	assert.InDelta(t, 120.0, s.Duration, 1e-9)
	assert.Equal(t, types.Variants{"total": 60}, s.Efficiency)
}

func TestFinite(t *testing.T) {
	assert.Equal(t, 0.0, finite(math.NaN()))
	assert.Equal(t, 0.0, finite(math.Inf(-1)))
	assert.Equal(t, 1.5, finite(1.5))
}
