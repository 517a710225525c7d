package shift

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

func counterRegs(low, high uint16) types.RegisterMap {
	d := machinetype.Salt()
	return types.RegisterMap{d.ShiftCounter.Low: low, d.ShiftCounter.High: high}
}

func TestResolveIdentity(t *testing.T) {
	id, ok := ResolveIdentity(machinetype.Salt(), "MACHINE_007", counterRegs(42, 0))
	assert.True(t, ok)
	assert.Equal(t, Identity{ShiftID: "M7_S42", ShiftNumber: 42, MachineNumber: 7}, id)
	assert.True(t, types.ValidShiftID(id.ShiftID))

	id, ok = ResolveIdentity(machinetype.Salt(), "MACHINE_003", counterRegs(1, 1))
	assert.True(t, ok)
	assert.Equal(t, "M3_S65537", id.ShiftID)
}

func TestResolveIdentityNoShift(t *testing.T) {
	_, ok := ResolveIdentity(machinetype.Salt(), "MACHINE_007", counterRegs(0, 0))
	assert.False(t, ok)

	id, ok := ResolveIdentity(machinetype.Salt(), "MACHINE_007", counterRegs(0, 0x8000))
	assert.False(t, ok, "counters past 2^31 decode negative")
	assert.Negative(t, id.ShiftNumber)
}

func TestMachineNumber(t *testing.T) {
	assert.Equal(t, 7, MachineNumber("MACHINE_007"))
	assert.Equal(t, 12, MachineNumber("line12-filler3"))
	assert.Equal(t, 1, MachineNumber("SALT_FILLER"))
	assert.Equal(t, 1, MachineNumber(""))
}
