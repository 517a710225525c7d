package shift

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

var machineNumberPattern = regexp.MustCompile(`\d+`)

// Identity names one shift on one machine.
type Identity struct {
	ShiftID       string
	ShiftNumber   int64
	MachineNumber int
}

// MachineNumber returns the first integer in a machine id, or 1 when there
// is none.
func MachineNumber(machineID string) int {
	match := machineNumberPattern.FindString(machineID)
	if match == "" {
		return 1
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 1
	}
	return n
}

func FormatShiftID(machineNumber int, shiftNumber int64) string {
	return fmt.Sprintf("M%d_S%d", machineNumber, shiftNumber)
}

// ResolveIdentity derives the shift id from the shift counter registers.
// ok is false when the counter is zero, which the PLC uses for "no shift".
//
// The counter decodes signed, so a value at or above 2^31 comes out
// negative. Such values are also reported as not ok.
func ResolveIdentity(desc *machinetype.Descriptor, machineID string, monitoring types.RegisterMap) (Identity, bool) {
	number := int64(codec.Combine16To32(
		monitoring[desc.ShiftCounter.Low],
		monitoring[desc.ShiftCounter.High],
	))
	machineNumber := MachineNumber(machineID)

	id := Identity{
		ShiftID:       FormatShiftID(machineNumber, number),
		ShiftNumber:   number,
		MachineNumber: machineNumber,
	}
	return id, number > 0
}
