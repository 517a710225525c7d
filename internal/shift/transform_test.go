package shift

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

func TestTransformPowder(t *testing.T) {
	d := machinetype.Powder()
	start := time.Date(2025, time.May, 1, 6, 30, 0, 0, time.Local)

	values := d.NewBlock().
		SetStatus(codec.StatusWord{
			MachineState: 1,
			TankFull:     []bool{true, false},
			ProductType:  2,
			LineActive:   []bool{true, true},
		}).
		SetShiftNumber(9).
		SetTargetWeight(250).
		SetWeight("onion", 1200.5).
		SetWeight("garlic", 800).
		SetBottles("onion", 4800).
		SetBottles("garlic", 3200).
		SetErrorCode(17).
		SetLoadcell(1, 1.25, -300).
		SetLoadcell(4, 2, 12).
		SetMotor("augerMotorFrequency", 45).
		SetMotor("conveyorMotorThreshold", 7).
		SetStartTime(start).
		SetOperator("Maria K").
		Values()

	monitoring, admin := d.Split(values)
	s := &types.Shift{TimeTracking: types.TimeTracking{ShiftPausedTime: 12}}
	Transform(d, s, monitoring, admin)

	assert.Equal(t, uint16(1), s.Monitoring.MachineStatus)
	assert.Equal(t, []bool{true, false}, s.Monitoring.TankFull)
	assert.Equal(t, uint16(2), s.Monitoring.ProductType)
	assert.Equal(t, []bool{true, true}, s.Monitoring.LineActive)
	assert.Equal(t, 250.0, s.Monitoring.TargetWeight)
	assert.Equal(t, types.Variants{"onion": 1200.5, "garlic": 800}, s.Monitoring.TotalWeightFilled)
	assert.Equal(t, map[string]int64{"onion": 4800, "garlic": 3200}, s.Monitoring.TotalBottles)
	assert.Equal(t, uint16(17), s.Monitoring.ErrorCode)

	require.Len(t, s.Admin.Loadcells, 4)
	assert.Equal(t, types.LoadcellConfig{Cell: 1, Gain: 1.25, Offset: -300}, s.Admin.Loadcells[0])
	assert.Equal(t, types.LoadcellConfig{Cell: 4, Gain: 2, Offset: 12}, s.Admin.Loadcells[3])
	assert.Equal(t, uint16(45), s.Admin.Motor["augerMotorFrequency"])
	assert.Equal(t, uint16(7), s.Admin.Motor["conveyorMotorThreshold"])
	assert.Len(t, s.Admin.Motor, len(d.Motor))

	require.NotNil(t, s.TimeTracking.ShiftStartTime)
	assert.True(t, start.Equal(*s.TimeTracking.ShiftStartTime))
	assert.Nil(t, s.TimeTracking.ShiftEndTime)
	assert.Zero(t, s.TimeTracking.ShiftPausedTime)
	assert.Equal(t, "Maria K", s.OperatorName)

	assert.Equal(t, monitoring, s.RawMonitoring)
	assert.Equal(t, admin, s.RawAdmin)
}

func TestTransformIsIdempotent(t *testing.T) {
	d := machinetype.Salt()
	values := d.NewBlock().
		SetMachineState(1).
		SetShiftNumber(3).
		SetWeight("total", 99.5).
		SetOperator("Bo").
		Values()
	monitoring, admin := d.Split(values)

	a := &types.Shift{}
	Transform(d, a, monitoring, admin)
	b := a.Clone()
	Transform(d, b, monitoring, admin)

	assert.Equal(t, a, b)
}

func TestTransformSanitisesFloats(t *testing.T) {
	d := machinetype.Salt()
	values := d.NewBlock().
		SetTargetWeight(float32(math.Inf(1))).
		SetWeight("total", float32(math.NaN())).
		Values()
	monitoring, admin := d.Split(values)

	s := &types.Shift{}
	Transform(d, s, monitoring, admin)
	assert.Zero(t, s.Monitoring.TargetWeight)
	assert.Zero(t, s.Monitoring.TotalWeightFilled["total"])
}
