package machinetype

import (
	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

var defaultBackup = BackupLayout{
	StatusRegister: 99,
	SlotBase:       100,
	SlotStride:     100,
	SlotSize:       100,
	Slots:          10,
}

// Salt returns the layout of the salt filling machine PLC program.
func Salt() *Descriptor {
	return &Descriptor{
		Type:           types.MachineTypeSalt,
		BlockStart:     0,
		BlockSize:      70,
		MonitoringSize: 10,

		StatusRegister: 0,
		StatusWord: codec.StatusWordLayout{
			MachineState: codec.BitField{Shift: 0, Width: 4},
			TankFull:     codec.BitField{Shift: 4, Width: 4},
			ProductType:  codec.BitField{Shift: 8, Width: 4},
			LineActive:   codec.BitField{Shift: 12, Width: 2},
		},
		StatusCodes: StatusCodes{Running: []uint16{1, 4}, Paused: 2, Stopped: 3},

		ShiftCounter: RegisterPair{Low: 1, High: 2},
		TargetWeight: RegisterPair{Low: 3, High: 4},
		Weights:      []NamedPair{{Name: "total", Low: 5, High: 6}},
		Bottles:      []NamedPair{{Name: "total", Low: 7, High: 8}},
		ErrorCode:    9,

		Loadcells: LoadcellLayout{Base: 10, Stride: 4, Count: 4},
		Motor: []NamedRegister{
			{Name: "fillingMotorFrequency", Address: 26},
			{Name: "fillingMotorThreshold", Address: 27},
			{Name: "conveyorMotorFrequency", Address: 28},
			{Name: "conveyorMotorThreshold", Address: 29},
			{Name: "agitatorMotorFrequency", Address: 30},
			{Name: "agitatorMotorThreshold", Address: 31},
			{Name: "cappingMotorFrequency", Address: 32},
			{Name: "cappingMotorThreshold", Address: 33},
		},

		StartTime: 34,
		EndTime:   40,
		Operator:  RegisterRange{Start: 46, End: 55},

		Backup: defaultBackup,
	}
}

// Powder returns the layout of the two-variant (onion/garlic) powder
// filling machine PLC program.
func Powder() *Descriptor {
	return &Descriptor{
		Type:           types.MachineTypePowder,
		BlockStart:     0,
		BlockSize:      70,
		MonitoringSize: 14,

		StatusRegister: 0,
		StatusWord: codec.StatusWordLayout{
			MachineState: codec.BitField{Shift: 0, Width: 4},
			TankFull:     codec.BitField{Shift: 4, Width: 2},
			ProductType:  codec.BitField{Shift: 6, Width: 4},
			LineActive:   codec.BitField{Shift: 10, Width: 2},
		},
		StatusCodes: StatusCodes{Running: []uint16{1}, Paused: 2, Stopped: 3},

		ShiftCounter: RegisterPair{Low: 1, High: 2},
		TargetWeight: RegisterPair{Low: 3, High: 4},
		Weights: []NamedPair{
			{Name: "onion", Low: 5, High: 6},
			{Name: "garlic", Low: 7, High: 8},
		},
		Bottles: []NamedPair{
			{Name: "onion", Low: 9, High: 10},
			{Name: "garlic", Low: 11, High: 12},
		},
		ErrorCode: 13,

		Loadcells: LoadcellLayout{Base: 14, Stride: 4, Count: 4},
		Motor: []NamedRegister{
			{Name: "augerMotorFrequency", Address: 30},
			{Name: "augerMotorThreshold", Address: 31},
			{Name: "vibratorFrequency", Address: 32},
			{Name: "vibratorThreshold", Address: 33},
			{Name: "conveyorMotorFrequency", Address: 34},
			{Name: "conveyorMotorThreshold", Address: 35},
		},

		StartTime: 36,
		EndTime:   42,
		Operator:  RegisterRange{Start: 48, End: 57},

		Backup: defaultBackup,
	}
}
