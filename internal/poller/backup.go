package poller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/modbus"
	"github.com/KevinKickass/OpenFillMonitor/internal/shift"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// processBackupShifts replays every backup slot whose bit in status is
// still clear and returns the status value after marking them read.
//
// A slot that cannot be read is marked read as well. Otherwise a
// permanently broken slot would be retried on every cycle; the shift it
// held is lost and the warning names the slot.
func (s *Scanner) processBackupShifts(
	ctx context.Context,
	m *types.Machine,
	svc *shift.Service,
	desc *machinetype.Descriptor,
	session *modbus.Session,
	status uint16,
) uint16 {
	layout := desc.Backup
	if layout.Slots == 0 {
		return status
	}
	log := s.logger.With(zap.String("machine_id", m.MachineID))

	if previous := m.Parameters.BackupStatus; previous != 0 && status == 0 {
		log.Warn("Backup status dropped to zero, re-reading to confirm",
			zap.Uint16("previous", previous))
		confirmed, err := s.readRegister(ctx, m, layout.StatusRegister, session)
		if err != nil {
			log.Warn("Backup status re-read failed, keeping previous value", zap.Error(err))
			return previous
		}
		status = confirmed
	}

	updated := status
	for slot := 0; slot < layout.Slots; slot++ {
		bit := uint16(1) << slot
		if status&bit != 0 {
			continue
		}

		values, err := s.readRegisters(ctx, m, layout.SlotAddress(slot), layout.SlotSize, session)
		if err != nil {
			log.Warn("Backup slot read failed, marking it read anyway",
				zap.Int("slot", slot),
				zap.Error(err))
		} else if err := svc.HandleBackupShift(ctx, m, values, slot); err != nil {
			log.Error("Failed to record backup shift",
				zap.Int("slot", slot),
				zap.Error(err))
		}
		updated |= bit
	}

	if updated == status {
		return status
	}

	if err := s.writeRegister(ctx, m, layout.StatusRegister, updated, session); err != nil {
		log.Warn("Failed to write backup status", zap.Uint16("value", updated), zap.Error(err))
		return updated
	}

	verified, err := s.readRegister(ctx, m, layout.StatusRegister, session)
	switch {
	case err != nil:
		log.Warn("Failed to verify backup status write", zap.Error(err))
	case verified != updated:
		log.Warn("Backup status write not applied",
			zap.Uint16("written", updated),
			zap.Uint16("read_back", verified))
	default:
		log.Info("Backup status updated", zap.Uint16("value", verified))
	}
	return updated
}

// readRegisters reads count holding registers from start, over session
// when given or over a connection of its own otherwise.
func (s *Scanner) readRegisters(ctx context.Context, m *types.Machine, start, count uint16, session *modbus.Session) ([]uint16, error) {
	if session == nil {
		var err error
		session, err = s.deviceFor(m).Connect(ctx)
		if err != nil {
			return nil, err
		}
		defer session.Close()
	}

	values, err := session.ReadRegisters(ctx, start, count)
	if err != nil {
		return nil, fmt.Errorf("read %d registers at %d: %w", count, start, err)
	}
	return values, nil
}

func (s *Scanner) readRegister(ctx context.Context, m *types.Machine, addr uint16, session *modbus.Session) (uint16, error) {
	values, err := s.readRegisters(ctx, m, addr, 1, session)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// writeRegister writes one holding register, over session when given or
// over a connection of its own otherwise.
func (s *Scanner) writeRegister(ctx context.Context, m *types.Machine, addr, value uint16, session *modbus.Session) error {
	if session == nil {
		var err error
		session, err = s.deviceFor(m).Connect(ctx)
		if err != nil {
			return err
		}
		defer session.Close()
	}

	if err := session.WriteRegister(ctx, addr, value); err != nil {
		return fmt.Errorf("write register %d: %w", addr, err)
	}
	return nil
}
