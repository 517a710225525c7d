package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidShiftID(t *testing.T) {
	assert.True(t, ValidShiftID("M7_S42"))
	assert.True(t, ValidShiftID("M1_S0"))
	assert.False(t, ValidShiftID("M7_S-1"))
	assert.False(t, ValidShiftID("MACHINE_7_S42"))
	assert.False(t, ValidShiftID("M7S42"))
}

func TestPauseLifecycle(t *testing.T) {
	s := &Shift{Status: ShiftActive}
	assert.Nil(t, s.OpenPause())

	s.StartPause(t0)
	require.NotNil(t, s.OpenPause())

	s.RefreshPause(t0.Add(2 * time.Minute))
	assert.InDelta(t, 2.0, s.PausedMinutes(), 1e-9)

	s.EndPause(t0.Add(5 * time.Minute))
	assert.Nil(t, s.OpenPause())
	require.Len(t, s.PauseHistory, 1)
	require.NotNil(t, s.PauseHistory[0].EndTime)
	assert.InDelta(t, 5.0, s.PauseHistory[0].DurationMinutes, 1e-9)

	// Closed intervals are not refreshed.
	s.RefreshPause(t0.Add(time.Hour))
	s.EndPause(t0.Add(time.Hour))
	assert.InDelta(t, 5.0, s.PausedMinutes(), 1e-9)

	s.StartPause(t0.Add(10 * time.Minute))
	s.RefreshPause(t0.Add(13 * time.Minute))
	assert.InDelta(t, 8.0, s.PausedMinutes(), 1e-9)
}

func TestShiftCloneIsDeep(t *testing.T) {
	start := t0
	s := &Shift{
		ShiftID:       "M1_S5",
		Monitoring:    MonitoringData{TankFull: []bool{true}, TotalWeightFilled: Variants{"total": 10}},
		Admin:         AdminData{Motor: map[string]uint16{"fillingMotorFrequency": 50}},
		TimeTracking:  TimeTracking{ShiftStartTime: &start},
		Efficiency:    Variants{"total": 1},
		RawMonitoring: RegisterMap{0: 1},
	}
	s.StartPause(t0)

	c := s.Clone()
	c.Monitoring.TankFull[0] = false
	c.Monitoring.TotalWeightFilled["total"] = 99
	c.Admin.Motor["fillingMotorFrequency"] = 0
	*c.TimeTracking.ShiftStartTime = t0.Add(time.Hour)
	c.EndPause(t0.Add(time.Minute))
	c.RawMonitoring[0] = 2

	assert.True(t, s.Monitoring.TankFull[0])
	assert.Equal(t, 10.0, s.Monitoring.TotalWeightFilled["total"])
	assert.Equal(t, uint16(50), s.Admin.Motor["fillingMotorFrequency"])
	assert.Equal(t, t0, *s.TimeTracking.ShiftStartTime)
	assert.NotNil(t, s.OpenPause())
	assert.Equal(t, uint16(1), s.RawMonitoring[0])
}

func TestRegisterMapJSONKeys(t *testing.T) {
	data, err := json.Marshal(RegisterMap{3: 7, 10: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"3":7,"10":1}`, string(data))

	var back RegisterMap
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, RegisterMap{3: 7, 10: 1}, back)
}
