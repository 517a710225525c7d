package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// MachineStore persists machine records keyed by machine id.
type MachineStore interface {
	ListMachines(ctx context.Context) ([]*types.Machine, error)
	GetMachine(ctx context.Context, machineID string) (*types.Machine, error)
	UpdateMachine(ctx context.Context, m *types.Machine) error
}

// ShiftStore persists shift records keyed by shift id. FindShift returns
// storage.ErrNotFound for unknown ids and CreateShift returns
// storage.ErrConflict when the id is taken.
type ShiftStore interface {
	FindShift(ctx context.Context, shiftID string) (*types.Shift, error)
	FindShiftsByMachine(ctx context.Context, machineID string, statuses ...types.ShiftStatus) ([]*types.Shift, error)
	CreateShift(ctx context.Context, s *types.Shift) error
	UpdateShift(ctx context.Context, s *types.Shift) error
}

// Publisher hands state changes to the notification relay. Implementations
// must not block the caller.
type Publisher interface {
	PublishMachine(m *types.Machine)
	PublishShift(s *types.Shift)
}
