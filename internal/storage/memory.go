package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// MemoryStore keeps machines and shifts in process memory. Records are
// copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	machines map[string]*types.Machine
	order    []string
	shifts   map[string]*types.Shift
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		machines: make(map[string]*types.Machine),
		shifts:   make(map[string]*types.Shift),
	}
}

// InsertMachine adds a machine. Machines are listed in insertion order.
func (s *MemoryStore) InsertMachine(_ context.Context, m *types.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[m.MachineID]; ok {
		return ErrConflict
	}
	s.order = append(s.order, m.MachineID)
	s.machines[m.MachineID] = m.Clone()
	return nil
}

func (s *MemoryStore) ListMachines(_ context.Context) ([]*types.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Machine, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.machines[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) GetMachine(_ context.Context, machineID string) (*types.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[machineID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) UpdateMachine(_ context.Context, m *types.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[m.MachineID]; !ok {
		return ErrNotFound
	}
	s.machines[m.MachineID] = m.Clone()
	return nil
}

// DeleteMachine removes a machine and its shifts.
func (s *MemoryStore) DeleteMachine(_ context.Context, machineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[machineID]; !ok {
		return ErrNotFound
	}
	delete(s.machines, machineID)
	for i, id := range s.order {
		if id == machineID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for id, sh := range s.shifts {
		if sh.MachineID == machineID {
			delete(s.shifts, id)
		}
	}
	return nil
}

func (s *MemoryStore) FindShift(_ context.Context, shiftID string) (*types.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shifts[shiftID]
	if !ok {
		return nil, ErrNotFound
	}
	return sh.Clone(), nil
}

// FindShiftsByMachine returns the machine's shifts ordered by creation
// time, optionally filtered by status.
func (s *MemoryStore) FindShiftsByMachine(_ context.Context, machineID string, statuses ...types.ShiftStatus) ([]*types.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Shift
	for _, sh := range s.shifts {
		if sh.MachineID != machineID || !statusIn(sh.Status, statuses) {
			continue
		}
		out = append(out, sh.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ShiftID < out[j].ShiftID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateShift(_ context.Context, sh *types.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shifts[sh.ShiftID]; ok {
		return ErrConflict
	}
	s.shifts[sh.ShiftID] = sh.Clone()
	return nil
}

func (s *MemoryStore) UpdateShift(_ context.Context, sh *types.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shifts[sh.ShiftID]; !ok {
		return ErrNotFound
	}
	s.shifts[sh.ShiftID] = sh.Clone()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func statusIn(status types.ShiftStatus, statuses []types.ShiftStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if st == status {
			return true
		}
	}
	return false
}
