package machinetype

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

func TestBuiltinDescriptorsAreValid(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	for _, d := range []*Descriptor{Salt(), Powder()} {
		t.Run(d.Type, func(t *testing.T) {
			require.NoError(t, d.Validate())
			require.NoError(t, v.ValidateDescriptor(d))
		})
	}
}

func TestShiftStatusMapping(t *testing.T) {
	d := Salt()

	cases := []struct {
		code   uint16
		status types.ShiftStatus
		ok     bool
	}{
		{1, types.ShiftActive, true},
		{4, types.ShiftActive, true},
		{2, types.ShiftPaused, true},
		{3, types.ShiftComplete, true},
		{0, "", false},
		{9, "", false},
	}
	for _, c := range cases {
		status, ok := d.ShiftStatus(c.code)
		assert.Equal(t, c.ok, ok, "code %d", c.code)
		assert.Equal(t, c.status, status, "code %d", c.code)
	}

	_, ok := Powder().ShiftStatus(4)
	assert.False(t, ok, "powder has a single running code")
}

func TestBlockSplit(t *testing.T) {
	d := Powder()
	start := time.Date(2025, time.May, 1, 6, 0, 0, 0, time.Local)

	values := d.NewBlock().
		SetMachineState(1).
		SetShiftNumber(42).
		SetWeight("garlic", 12.5).
		SetMotor("vibratorFrequency", 50).
		SetStartTime(start).
		SetOperator("Ann").
		Values()
	require.Len(t, values, int(d.BlockSize))

	// Backup slots carry padding past the block.
	values = append(values, 0xDEAD, 0xBEEF)

	monitoring, admin := d.Split(values)
	assert.Len(t, monitoring, int(d.MonitoringSize))
	assert.Len(t, admin, int(d.BlockSize-d.MonitoringSize))
	assert.Equal(t, uint16(1), d.MachineState(monitoring))
	assert.Equal(t, int32(42), codec.Combine16To32(monitoring[d.ShiftCounter.Low], monitoring[d.ShiftCounter.High]))
	assert.Equal(t, uint16(50), admin[32])

	ts := codec.ExtractTimestamp(admin, d.StartTime)
	require.NotNil(t, ts)
	assert.True(t, start.Equal(*ts))
	assert.Equal(t, "Ann", codec.ExtractASCIIString(admin, d.Operator.Start, d.Operator.End))
}

func TestBlockSetMachineStateKeepsOtherBits(t *testing.T) {
	d := Salt()
	b := d.NewBlock().SetStatus(codec.StatusWord{
		MachineState: 1,
		TankFull:     []bool{true, true, false, false},
		ProductType:  3,
		LineActive:   []bool{false, true},
	})
	b.SetMachineState(2)

	w := d.StatusWord.Decode(b.Values()[d.StatusRegister])
	assert.Equal(t, uint16(2), w.MachineState)
	assert.Equal(t, uint16(3), w.ProductType)
	assert.Equal(t, []bool{true, true, false, false}, w.TankFull)
	assert.Equal(t, []bool{false, true}, w.LineActive)
}

func TestValidateRejectsBadLayouts(t *testing.T) {
	d := Salt()
	d.Operator = RegisterRange{Start: 46, End: 80}
	assert.ErrorContains(t, d.Validate(), "operator")

	d = Salt()
	d.Backup.Slots = 17
	assert.Error(t, d.Validate())

	d = Salt()
	d.Weights = nil
	assert.ErrorContains(t, d.Validate(), "weight")

	// salt names both its weight and bottle pair "total"
	d = Salt()
	d.Weights[0].Low = 90
	assert.ErrorContains(t, d.Validate(), "weight total low")

	d = Salt()
	d.Bottles[0].High = 90
	assert.ErrorContains(t, d.Validate(), "bottles total high")

	d = Salt()
	d.BlockSize = 130
	d.Backup.SlotSize = 130
	assert.Error(t, d.Validate())
}

func TestBackupLayout(t *testing.T) {
	b := Salt().Backup
	assert.Equal(t, uint16(100), b.SlotAddress(0))
	assert.Equal(t, uint16(1000), b.SlotAddress(9))
	assert.Equal(t, uint16(0x03FF), b.AllSlotsMask())
}

func TestRegistryBuiltins(t *testing.T) {
	r, err := NewRegistry(nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{types.MachineTypePowder, types.MachineTypeSalt}, r.Types())

	d, ok := r.Lookup(types.MachineTypeSalt)
	require.True(t, ok)
	assert.Equal(t, uint16(10), d.MonitoringSize)

	_, ok = r.Lookup("Pepper Filling Machine")
	assert.False(t, ok)
}

func TestRegistryLoadsOverrides(t *testing.T) {
	dir := t.TempDir()

	pepper := Salt()
	pepper.Type = "Pepper Filling Machine"
	pepper.StatusCodes.Running = []uint16{5}
	data, err := json.Marshal(pepper)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pepper.json"), data, 0o644))

	yamlDoc := `
type: Salt Filling Machine
block_size: 70
monitoring_size: 10
status_register: 0
status_word:
  machine_state: {shift: 0, width: 4}
status_codes:
  running: [1]
  paused: 2
  stopped: 3
shift_counter: {low: 1, high: 2}
target_weight: {low: 3, high: 4}
weights:
  - {name: total, low: 5, high: 6}
start_time: 34
end_time: 40
operator: {start: 46, end: 55}
backup:
  status_register: 99
  slot_base: 100
  slot_stride: 100
  slot_size: 100
  slots: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "salt.yaml"), []byte(yamlDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))

	r, err := NewRegistry([]string{filepath.Join(dir, "missing"), dir}, zap.NewNop())
	require.NoError(t, err)

	d, ok := r.Lookup("Pepper Filling Machine")
	require.True(t, ok)
	assert.True(t, d.IsRunning(5))

	salt, ok := r.Lookup(types.MachineTypeSalt)
	require.True(t, ok)
	assert.Equal(t, 4, salt.Backup.Slots)
	assert.Empty(t, salt.Motor)
}

func TestRegistryReloadReplacesRemovedOverrides(t *testing.T) {
	dir := t.TempDir()

	pepper := Salt()
	pepper.Type = "Pepper Filling Machine"
	data, err := json.Marshal(pepper)
	require.NoError(t, err)
	pepperPath := filepath.Join(dir, "pepper.json")
	require.NoError(t, os.WriteFile(pepperPath, data, 0o644))

	salt := Salt()
	salt.Backup.Slots = 4
	data, err = json.Marshal(salt)
	require.NoError(t, err)
	saltPath := filepath.Join(dir, "salt.json")
	require.NoError(t, os.WriteFile(saltPath, data, 0o644))

	r, err := NewRegistry([]string{dir}, zap.NewNop())
	require.NoError(t, err)

	d, ok := r.Lookup(types.MachineTypeSalt)
	require.True(t, ok)
	require.Equal(t, 4, d.Backup.Slots)
	_, ok = r.Lookup("Pepper Filling Machine")
	require.True(t, ok)

	require.NoError(t, os.Remove(pepperPath))
	require.NoError(t, os.Remove(saltPath))
	require.NoError(t, r.Reload())

	_, ok = r.Lookup("Pepper Filling Machine")
	assert.False(t, ok)
	d, ok = r.Lookup(types.MachineTypeSalt)
	require.True(t, ok)
	assert.Equal(t, 10, d.Backup.Slots)
	assert.Equal(t, []string{types.MachineTypePowder, types.MachineTypeSalt}, r.Types())
}

func TestRegistryRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"),
		[]byte(`{"type": "Broken", "block_size": 500}`), 0o644))

	_, err := NewRegistry([]string{dir}, zap.NewNop())
	require.Error(t, err)
}

func TestRegistryRejectsOutOfBlockAddress(t *testing.T) {
	r, err := NewRegistry(nil, zap.NewNop())
	require.NoError(t, err)

	d := Salt()
	d.Type = "Wide"
	d.ErrorCode = 90
	require.Error(t, r.Register(d))

	d.ErrorCode = 9
	require.NoError(t, r.Register(d))
	_, ok := r.Lookup("Wide")
	assert.True(t, ok)
}

func TestShippedMachineTypes(t *testing.T) {
	r, err := NewRegistry([]string{filepath.Join("..", "..", "configs", "machine-types")}, zap.NewNop())
	require.NoError(t, err)

	d, ok := r.Lookup("Spice Filling Machine")
	require.True(t, ok)
	assert.Len(t, d.Weights, 2)
	assert.True(t, d.IsRunning(4))
	assert.Equal(t, 2, d.Loadcells.Count)
}
