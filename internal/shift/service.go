// Package shift turns raw register blocks into shift records. One Service
// runs per machine type; the register layout comes from a
// machinetype.Descriptor so every type shares the same lifecycle rules.
package shift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/interfaces"
	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/storage"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// Service tracks shifts for every machine of one type. Its per-machine
// memory is only touched through its own handlers.
type Service struct {
	desc      atomic.Pointer[machinetype.Descriptor]
	shifts    interfaces.ShiftStore
	publisher interfaces.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu             sync.Mutex
	lastShiftID    map[string]string
	lastStatusCode map[string]uint16
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(desc *machinetype.Descriptor, shifts interfaces.ShiftStore, publisher interfaces.Publisher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		shifts:         shifts,
		publisher:      publisher,
		logger:         logger.Named("shift").With(zap.String("machine_type", desc.Type)),
		now:            time.Now,
		lastShiftID:    make(map[string]string),
		lastStatusCode: make(map[string]uint16),
	}
	s.desc.Store(desc)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Descriptor() *machinetype.Descriptor {
	return s.desc.Load()
}

// SetDescriptor swaps the register layout after a registry reload. The
// remembered shift ids and status codes are kept, so a rollover spanning
// the reload is still detected.
func (s *Service) SetDescriptor(desc *machinetype.Descriptor) {
	s.desc.Store(desc)
}

// LastStatusCode returns the machine-state code seen on the most recent
// poll of a machine.
func (s *Service) LastStatusCode(machineID string) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.lastStatusCode[machineID]
	return code, ok
}

// HandleTracking processes one live register block read from m.
func (s *Service) HandleTracking(ctx context.Context, m *types.Machine, values []uint16) error {
	desc := s.Descriptor()
	monitoring, admin := desc.Split(values)
	code := desc.MachineState(monitoring)

	s.mu.Lock()
	prevCode, prevKnown := s.lastStatusCode[m.MachineID]
	s.lastStatusCode[m.MachineID] = code
	prevShiftID := s.lastShiftID[m.MachineID]
	s.mu.Unlock()

	id, ok := ResolveIdentity(desc, m.MachineID, monitoring)
	if !ok {
		if id.ShiftNumber < 0 {
			s.logger.Warn("Shift counter decoded negative, treating as no shift",
				zap.String("machine_id", m.MachineID),
				zap.Int64("shift_number", id.ShiftNumber))
		}
		return nil
	}

	if prevShiftID != "" && prevShiftID != id.ShiftID {
		s.logger.Info("Shift changed",
			zap.String("machine_id", m.MachineID),
			zap.String("previous", prevShiftID),
			zap.String("current", id.ShiftID))
		if err := s.finalize(ctx, prevShiftID, prevCode, prevKnown); err != nil {
			s.logger.Error("Failed to finalize previous shift",
				zap.String("shift_id", prevShiftID),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	s.lastShiftID[m.MachineID] = id.ShiftID
	s.mu.Unlock()

	existing, err := s.shifts.FindShift(ctx, id.ShiftID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		err = s.create(ctx, m, id, code, monitoring, admin)
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		s.logger.Warn("Shift created concurrently, updating instead",
			zap.String("shift_id", id.ShiftID))
		existing, err = s.shifts.FindShift(ctx, id.ShiftID)
		if err != nil {
			return fmt.Errorf("failed to load shift %s: %w", id.ShiftID, err)
		}
	case err != nil:
		return fmt.Errorf("failed to load shift %s: %w", id.ShiftID, err)
	}

	return s.update(ctx, existing, code, monitoring, admin)
}

func (s *Service) create(ctx context.Context, m *types.Machine, id Identity, code uint16, monitoring, admin types.RegisterMap) error {
	desc := s.Descriptor()
	now := s.now()
	sh := s.newShift(m, id, now)
	sh.Status = types.ShiftActive
	if desc.IsPaused(code) {
		sh.Status = types.ShiftPaused
		sh.StartPause(now)
	}

	Transform(desc, sh, monitoring, admin)
	sh.TimeTracking.ShiftPausedTime = 0
	CalculateAllMetrics(sh, now)

	if err := s.shifts.CreateShift(ctx, sh); err != nil {
		return fmt.Errorf("failed to create shift %s: %w", sh.ShiftID, err)
	}

	s.logger.Info("Shift created",
		zap.String("shift_id", sh.ShiftID),
		zap.String("machine_id", m.MachineID),
		zap.String("status", string(sh.Status)))
	s.publisher.PublishShift(sh.Clone())
	return nil
}

func (s *Service) update(ctx context.Context, sh *types.Shift, code uint16, monitoring, admin types.RegisterMap) error {
	desc := s.Descriptor()
	now := s.now()

	previous := sh.Status
	target, ok := desc.ShiftStatus(code)
	if !ok {
		target = previous
	}

	if target != previous {
		if previous == types.ShiftPaused {
			sh.EndPause(now)
		}
		if target == types.ShiftPaused {
			sh.StartPause(now)
		}
		sh.Status = target
		s.logger.Info("Shift status changed",
			zap.String("shift_id", sh.ShiftID),
			zap.String("from", string(previous)),
			zap.String("to", string(target)))
	}

	if sh.Status == types.ShiftPaused {
		if sh.OpenPause() == nil {
			sh.StartPause(now)
		}
		sh.RefreshPause(now)
	}

	paused := sh.PausedMinutes()
	Transform(desc, sh, monitoring, admin)
	sh.TimeTracking.ShiftPausedTime = paused
	CalculateAllMetrics(sh, now)
	sh.UpdatedAt = now

	if err := s.shifts.UpdateShift(ctx, sh); err != nil {
		return fmt.Errorf("failed to update shift %s: %w", sh.ShiftID, err)
	}
	s.publisher.PublishShift(sh.Clone())
	return nil
}

// finalize closes a shift that is no longer the machine's current one.
// code is the machine state observed while it was current.
func (s *Service) finalize(ctx context.Context, shiftID string, code uint16, known bool) error {
	desc := s.Descriptor()
	sh, err := s.shifts.FindShift(ctx, shiftID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !sh.Status.Open() {
		return nil
	}

	now := s.now()
	sh.EndPause(now)
	sh.Status = types.ShiftIncomplete
	if known && desc.IsStopped(code) {
		sh.Status = types.ShiftComplete
	}
	sh.TimeTracking.ShiftPausedTime = sh.PausedMinutes()
	CalculateAllMetrics(sh, now)
	sh.UpdatedAt = now

	if err := s.shifts.UpdateShift(ctx, sh); err != nil {
		return err
	}

	s.logger.Info("Shift finalized",
		zap.String("shift_id", sh.ShiftID),
		zap.String("status", string(sh.Status)))
	s.publisher.PublishShift(sh.Clone())
	return nil
}

// HandleBackupShift records a shift from backup slot. Shifts that already
// exist are left untouched.
func (s *Service) HandleBackupShift(ctx context.Context, m *types.Machine, values []uint16, slot int) error {
	desc := s.Descriptor()
	monitoring, admin := desc.Split(values)
	id, ok := ResolveIdentity(desc, m.MachineID, monitoring)
	if !ok {
		return nil
	}

	_, err := s.shifts.FindShift(ctx, id.ShiftID)
	if err == nil {
		s.logger.Debug("Backup shift already recorded",
			zap.String("shift_id", id.ShiftID),
			zap.Int("slot", slot))
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load shift %s: %w", id.ShiftID, err)
	}

	now := s.now()
	sh := s.newShift(m, id, now)
	sh.IsFromBackup = true
	sh.BackupIndex = slot + 1
	sh.Status = types.ShiftIncomplete
	if desc.IsStopped(desc.MachineState(monitoring)) {
		sh.Status = types.ShiftComplete
	}

	Transform(desc, sh, monitoring, admin)
	sh.TimeTracking.ShiftPausedTime = 0
	CalculateAllMetrics(sh, now)

	if err := s.shifts.CreateShift(ctx, sh); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to create backup shift %s: %w", sh.ShiftID, err)
	}

	s.logger.Info("Backup shift recovered",
		zap.String("shift_id", sh.ShiftID),
		zap.String("machine_id", m.MachineID),
		zap.Int("slot", slot),
		zap.String("status", string(sh.Status)))
	s.publisher.PublishShift(sh.Clone())
	return nil
}

// HandleConnectionLoss closes every open shift of m. A shift whose machine
// last reported stopped becomes complete and gets an end time; any other
// becomes incomplete. Each shift is saved independently.
func (s *Service) HandleConnectionLoss(ctx context.Context, m *types.Machine) error {
	desc := s.Descriptor()
	open, err := s.shifts.FindShiftsByMachine(ctx, m.MachineID, types.ShiftActive, types.ShiftPaused)
	if err != nil {
		return fmt.Errorf("failed to load open shifts: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	code, known := s.LastStatusCode(m.MachineID)
	stopped := known && desc.IsStopped(code)
	now := s.now()

	var errs []error
	for _, sh := range open {
		sh.EndPause(now)
		if stopped {
			sh.Status = types.ShiftComplete
			end := now
			sh.TimeTracking.ShiftEndTime = &end
		} else {
			sh.Status = types.ShiftIncomplete
		}
		sh.TimeTracking.ShiftPausedTime = sh.PausedMinutes()
		CalculateAllMetrics(sh, now)
		sh.UpdatedAt = now

		if err := s.shifts.UpdateShift(ctx, sh); err != nil {
			errs = append(errs, fmt.Errorf("shift %s: %w", sh.ShiftID, err))
			continue
		}

		s.logger.Info("Shift closed on connection loss",
			zap.String("shift_id", sh.ShiftID),
			zap.String("machine_id", m.MachineID),
			zap.String("status", string(sh.Status)))
		s.publisher.PublishShift(sh.Clone())
	}

	return errors.Join(errs...)
}

func (s *Service) newShift(m *types.Machine, id Identity, now time.Time) *types.Shift {
	return &types.Shift{
		ShiftID:       id.ShiftID,
		MachineID:     m.MachineID,
		MachineName:   m.Name,
		MachineType:   s.Descriptor().Type,
		UserID:        m.UserID,
		MachineNumber: id.MachineNumber,
		ShiftNumber:   id.ShiftNumber,
		PauseHistory:  []types.PauseInterval{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
