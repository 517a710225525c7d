// Package machinetype describes the register layout of each kind of
// filling machine. Everything that differs between salt and powder
// machines lives here as data so the shift logic can stay generic.
package machinetype

import (
	"fmt"

	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// All addresses in a Descriptor are offsets from the start of the block
// being decoded, so the same layout applies to the live block and to every
// backup slot.
type Descriptor struct {
	Type string `json:"type"`

	BlockStart     uint16 `json:"block_start"`
	BlockSize      uint16 `json:"block_size"`
	MonitoringSize uint16 `json:"monitoring_size"`

	StatusRegister uint16                 `json:"status_register"`
	StatusWord     codec.StatusWordLayout `json:"status_word"`
	StatusCodes    StatusCodes            `json:"status_codes"`

	ShiftCounter RegisterPair    `json:"shift_counter"`
	TargetWeight RegisterPair    `json:"target_weight"`
	Weights      []NamedPair     `json:"weights"`
	Bottles      []NamedPair     `json:"bottles,omitempty"`
	ErrorCode    uint16          `json:"error_code"`
	Loadcells    LoadcellLayout  `json:"loadcells"`
	Motor        []NamedRegister `json:"motor,omitempty"`

	StartTime uint16        `json:"start_time"`
	EndTime   uint16        `json:"end_time"`
	Operator  RegisterRange `json:"operator"`

	Backup BackupLayout `json:"backup"`
}

type RegisterPair struct {
	Low  uint16 `json:"low"`
	High uint16 `json:"high"`
}

type NamedPair struct {
	Name string `json:"name"`
	Low  uint16 `json:"low"`
	High uint16 `json:"high"`
}

type NamedRegister struct {
	Name    string `json:"name"`
	Address uint16 `json:"address"`
}

// RegisterRange is inclusive on both ends.
type RegisterRange struct {
	Start uint16 `json:"start"`
	End   uint16 `json:"end"`
}

// LoadcellLayout places Count cells of four registers each (gain low/high,
// offset low/high) every Stride registers from Base.
type LoadcellLayout struct {
	Base   uint16 `json:"base"`
	Stride uint16 `json:"stride"`
	Count  int    `json:"count"`
}

// StatusCodes maps decoded machine-state codes to shift semantics. Codes
// not listed leave the shift status unchanged.
type StatusCodes struct {
	Running []uint16 `json:"running"`
	Paused  uint16   `json:"paused"`
	Stopped uint16   `json:"stopped"`
}

// BackupLayout locates the device-side shift snapshots. Bit i of the
// status register is set once slot i has been consumed.
type BackupLayout struct {
	StatusRegister uint16 `json:"status_register"`
	SlotBase       uint16 `json:"slot_base"`
	SlotStride     uint16 `json:"slot_stride"`
	SlotSize       uint16 `json:"slot_size"`
	Slots          int    `json:"slots"`
}

// SlotAddress returns the absolute start address of backup slot i.
func (b BackupLayout) SlotAddress(i int) uint16 {
	return b.SlotBase + uint16(i)*b.SlotStride
}

// AllSlotsMask has one bit set per backup slot.
func (b BackupLayout) AllSlotsMask() uint16 {
	return uint16(1)<<b.Slots - 1
}

// Split divides a block into its monitoring and admin maps. Registers past
// BlockSize are ignored; backup slots carry padding there.
func (d *Descriptor) Split(values []uint16) (monitoring, admin types.RegisterMap) {
	end := d.BlockSize
	if int(end) > len(values) {
		end = uint16(len(values))
	}
	mon := d.MonitoringSize
	if mon > end {
		mon = end
	}
	return types.Slice(values, 0, mon), types.Slice(values, mon, end)
}

// MachineState decodes the machine-state code from a monitoring map.
func (d *Descriptor) MachineState(monitoring types.RegisterMap) uint16 {
	return d.StatusWord.MachineState.Get(monitoring[d.StatusRegister])
}

func (d *Descriptor) IsStopped(code uint16) bool { return code == d.StatusCodes.Stopped }
func (d *Descriptor) IsPaused(code uint16) bool  { return code == d.StatusCodes.Paused }

func (d *Descriptor) IsRunning(code uint16) bool {
	for _, c := range d.StatusCodes.Running {
		if c == code {
			return true
		}
	}
	return false
}

// ShiftStatus maps a machine-state code to the shift status it implies.
// ok is false for codes with no mapping.
func (d *Descriptor) ShiftStatus(code uint16) (status types.ShiftStatus, ok bool) {
	switch {
	case d.IsStopped(code):
		return types.ShiftComplete, true
	case d.IsPaused(code):
		return types.ShiftPaused, true
	case d.IsRunning(code):
		return types.ShiftActive, true
	}
	return "", false
}

// Validate checks that every address falls inside the block.
func (d *Descriptor) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("machine type name is empty")
	}
	if d.MonitoringSize == 0 || d.MonitoringSize > d.BlockSize {
		return fmt.Errorf("%s: monitoring size %d outside block of %d", d.Type, d.MonitoringSize, d.BlockSize)
	}
	if d.BlockSize > 125 || d.Backup.SlotSize > 125 {
		return fmt.Errorf("%s: blocks larger than 125 registers cannot be read in one request", d.Type)
	}
	if d.Backup.Slots < 0 || d.Backup.Slots > 16 {
		return fmt.Errorf("%s: %d backup slots do not fit a 16-bit status register", d.Type, d.Backup.Slots)
	}
	if d.Backup.Slots > 0 && d.Backup.SlotSize < d.BlockSize {
		return fmt.Errorf("%s: backup slot of %d registers cannot hold a block of %d", d.Type, d.Backup.SlotSize, d.BlockSize)
	}

	check := func(name string, addr uint16) error {
		if addr >= d.BlockSize {
			return fmt.Errorf("%s: %s register %d outside block of %d", d.Type, name, addr, d.BlockSize)
		}
		return nil
	}

	addrs := map[string]uint16{
		"status":             d.StatusRegister,
		"shift counter low":  d.ShiftCounter.Low,
		"shift counter high": d.ShiftCounter.High,
		"target weight low":  d.TargetWeight.Low,
		"target weight high": d.TargetWeight.High,
		"error code":         d.ErrorCode,
		"start time":         d.StartTime + codec.TimestampRegisters - 1,
		"end time":           d.EndTime + codec.TimestampRegisters - 1,
		"operator":           d.Operator.End,
	}
	for _, p := range d.Weights {
		addrs["weight "+p.Name+" low"] = p.Low
		addrs["weight "+p.Name+" high"] = p.High
	}
	for _, p := range d.Bottles {
		addrs["bottles "+p.Name+" low"] = p.Low
		addrs["bottles "+p.Name+" high"] = p.High
	}
	for _, m := range d.Motor {
		addrs["motor "+m.Name] = m.Address
	}
	if d.Loadcells.Count > 0 {
		addrs["loadcells"] = d.Loadcells.Base + uint16(d.Loadcells.Count-1)*d.Loadcells.Stride + 3
	}
	for name, addr := range addrs {
		if err := check(name, addr); err != nil {
			return err
		}
	}
	if d.Operator.Start > d.Operator.End {
		return fmt.Errorf("%s: operator range %d-%d is reversed", d.Type, d.Operator.Start, d.Operator.End)
	}
	if len(d.Weights) == 0 {
		return fmt.Errorf("%s: at least one weight variant is required", d.Type)
	}
	return nil
}
