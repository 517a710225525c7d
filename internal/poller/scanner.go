// Package poller drives the periodic Modbus scan of every provisioned
// machine and feeds the decoded blocks to the shift services.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/interfaces"
	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/modbus"
	"github.com/KevinKickass/OpenFillMonitor/internal/shift"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

const defaultUnitID = 1

var (
	// ErrMachineBusy is returned when a scan of the same machine is
	// already in flight.
	ErrMachineBusy = errors.New("machine scan already in progress")

	ErrUnknownMachineType = errors.New("unknown machine type")
)

// Scanner reads every machine in turn, one machine at a time, with a
// fixed delay between machines.
type Scanner struct {
	poller    config.PollerConfig
	modbus    config.ModbusConfig
	machines  interfaces.MachineStore
	shifts    interfaces.ShiftStore
	registry  *machinetype.Registry
	publisher interfaces.Publisher
	logger    *zap.Logger
	now       func() time.Time

	servicesMu sync.Mutex
	services   map[string]*shift.Service

	devicesMu sync.Mutex
	devices   map[string]*modbus.Device

	locksMu sync.Mutex
	locks   map[string]bool

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	statsMu sync.RWMutex
	stats   interfaces.ScannerStats
}

type Option func(*Scanner)

// WithClock replaces time.Now for the scanner and its shift services.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func NewScanner(
	pollerCfg config.PollerConfig,
	modbusCfg config.ModbusConfig,
	machines interfaces.MachineStore,
	shifts interfaces.ShiftStore,
	registry *machinetype.Registry,
	publisher interfaces.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Scanner {
	s := &Scanner{
		poller:    pollerCfg,
		modbus:    modbusCfg,
		machines:  machines,
		shifts:    shifts,
		registry:  registry,
		publisher: publisher,
		logger:    logger.Named("poller"),
		now:       time.Now,
		services:  make(map[string]*shift.Service),
		devices:   make(map[string]*modbus.Device),
		locks:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartPolling runs a first scan after the warm-up delay and then one
// every scan interval until Stop. Calling it while running is a no-op.
func (s *Scanner) StartPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.pollLoop(s.stopChan)

	s.statsMu.Lock()
	s.stats.Running = true
	s.statsMu.Unlock()

	s.logger.Info("Polling started",
		zap.Duration("scan_interval", s.poller.ScanInterval),
		zap.Duration("warmup_delay", s.poller.WarmupDelay))
}

// Stop ends polling and waits for the scan in flight, if any.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.statsMu.Lock()
	s.stats.Running = false
	s.statsMu.Unlock()

	s.logger.Info("Polling stopped")
}

func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scanner) Stats() interfaces.ScannerStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	out := s.stats
	out.LastScanStart = cloneTime(s.stats.LastScanStart)
	out.LastScanEnd = cloneTime(s.stats.LastScanEnd)
	return out
}

func (s *Scanner) pollLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	if !sleep(ctx, s.poller.WarmupDelay) {
		return
	}
	s.ScanAllMachines(ctx)

	ticker := time.NewTicker(s.poller.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ScanAllMachines(ctx)
		}
	}
}

// ScanAllMachines reads every machine in list order. A failing machine
// never aborts the cycle. Cancelling ctx skips the machines not yet
// started; the machine being read finishes its cycle.
func (s *Scanner) ScanAllMachines(ctx context.Context) {
	start := s.now()
	s.statsMu.Lock()
	s.stats.LastScanStart = &start
	s.statsMu.Unlock()

	machines, err := s.machines.ListMachines(ctx)
	if err != nil {
		s.logger.Error("Failed to load machines", zap.Error(err))
		return
	}

	var scanned, failed int
	for i, m := range machines {
		if i > 0 && !sleep(ctx, s.poller.MachineDelay) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		scanned++
		if !s.scanMachine(context.WithoutCancel(ctx), m) {
			failed++
		}
	}

	end := s.now()
	s.statsMu.Lock()
	s.stats.Cycles++
	s.stats.LastScanEnd = &end
	s.stats.MachinesScanned = scanned
	s.stats.MachinesFailed = failed
	s.statsMu.Unlock()

	s.logger.Debug("Scan cycle finished",
		zap.Int("machines", scanned),
		zap.Int("failed", failed),
		zap.Duration("elapsed", end.Sub(start)))
}

// scanMachine runs one read cycle and then double-checks the persisted
// connectivity: a machine that went from connected to disconnected gets
// its open shifts closed even if the read path missed it.
func (s *Scanner) scanMachine(ctx context.Context, m *types.Machine) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while scanning machine",
				zap.String("machine_id", m.MachineID),
				zap.Any("panic", r))
			ok = false
		}
	}()

	wasConnected := m.IsConnected

	err := s.PerformModbusRead(ctx, m)
	if err != nil {
		s.logger.Warn("Machine scan failed",
			zap.String("machine_id", m.MachineID),
			zap.Error(err))
	}

	current, getErr := s.machines.GetMachine(ctx, m.MachineID)
	if getErr != nil {
		s.logger.Error("Failed to reload machine",
			zap.String("machine_id", m.MachineID),
			zap.Error(getErr))
		return err == nil
	}
	if wasConnected && !current.IsConnected {
		if svc, _, found := s.serviceFor(current.Type); found {
			if lossErr := svc.HandleConnectionLoss(ctx, current); lossErr != nil {
				s.logger.Error("Failed to close shifts after connection loss",
					zap.String("machine_id", m.MachineID),
					zap.Error(lossErr))
			}
		}
	}
	return err == nil
}

// PerformModbusRead runs the full read cycle for one machine over a
// single connection: main block, backup status register, shift tracking,
// backup slots, then the machine record.
func (s *Scanner) PerformModbusRead(ctx context.Context, m *types.Machine) error {
	if !s.acquire(m.MachineID) {
		return ErrMachineBusy
	}
	defer s.release(m.MachineID)

	svc, desc, found := s.serviceFor(m.Type)
	if !found {
		m.MarkError(s.now(), ErrUnknownMachineType.Error())
		s.saveMachine(ctx, m)
		return fmt.Errorf("%w %q", ErrUnknownMachineType, m.Type)
	}

	handled := false
	connectionLost := func(reason error) error {
		if handled {
			return reason
		}
		handled = true

		if err := svc.HandleConnectionLoss(ctx, m); err != nil {
			s.logger.Error("Failed to close shifts after connection loss",
				zap.String("machine_id", m.MachineID),
				zap.Error(err))
		}
		if m.IsConnected {
			s.logger.Info("Machine went offline",
				zap.String("machine_id", m.MachineID),
				zap.Error(reason))
		}
		m.MarkOffline(s.now(), reason.Error())
		s.saveMachine(ctx, m)
		return reason
	}

	device := s.deviceFor(m)
	session, err := device.Connect(ctx)
	if err != nil {
		return connectionLost(err)
	}
	defer session.Close()

	values, err := s.readRegisters(ctx, m, desc.BlockStart, desc.BlockSize, session)
	if err != nil {
		return connectionLost(fmt.Errorf("failed to read register block: %w", err))
	}

	sleep(ctx, s.modbus.BackupReadDelay)

	backupStatus, err := s.readRegister(ctx, m, desc.Backup.StatusRegister, session)
	if err != nil {
		s.logger.Warn("Failed to read backup status register, assuming no slot read",
			zap.String("machine_id", m.MachineID),
			zap.Error(err))
		backupStatus = 0
	}

	if err := svc.HandleTracking(ctx, m, values); err != nil {
		s.logger.Error("Shift tracking failed",
			zap.String("machine_id", m.MachineID),
			zap.Error(err))
	}

	backupStatus = s.processBackupShifts(ctx, m, svc, desc, session, backupStatus)

	if !m.IsConnected {
		s.logger.Info("Machine online",
			zap.String("machine_id", m.MachineID),
			zap.String("address", device.Address))
	}
	monitoring, admin := desc.Split(values)
	m.MarkOnline(s.now(), types.MachineParameters{
		Monitoring:   monitoring,
		Admin:        admin,
		BackupStatus: backupStatus,
	})
	return s.saveMachine(ctx, m)
}

func (s *Scanner) saveMachine(ctx context.Context, m *types.Machine) error {
	m.UpdatedAt = s.now()
	if err := s.machines.UpdateMachine(ctx, m); err != nil {
		s.logger.Error("Failed to persist machine",
			zap.String("machine_id", m.MachineID),
			zap.Error(err))
		return fmt.Errorf("failed to persist machine %s: %w", m.MachineID, err)
	}
	s.publisher.PublishMachine(m)
	return nil
}

func (s *Scanner) serviceFor(machineType string) (*shift.Service, *machinetype.Descriptor, bool) {
	desc, ok := s.registry.Lookup(machineType)
	if !ok {
		return nil, nil, false
	}

	s.servicesMu.Lock()
	defer s.servicesMu.Unlock()

	// A registry reload hands out a new descriptor. The service keeps its
	// per-machine memory across the swap.
	svc, ok := s.services[machineType]
	if !ok {
		svc = shift.NewService(desc, s.shifts, s.publisher, s.logger, shift.WithClock(s.now))
		s.services[machineType] = svc
	} else if svc.Descriptor() != desc {
		svc.SetDescriptor(desc)
	}
	return svc, desc, true
}

// deviceFor keeps one device per machine so the transaction id keeps
// increasing across cycles.
func (s *Scanner) deviceFor(m *types.Machine) *modbus.Device {
	address := m.Address(s.modbus.Port)
	unitID := m.SlaveID
	if unitID == 0 {
		unitID = defaultUnitID
	}

	s.devicesMu.Lock()
	defer s.devicesMu.Unlock()

	d, ok := s.devices[m.MachineID]
	if !ok || d.Address != address || d.UnitID != unitID {
		d = modbus.NewDevice(m.MachineID, address, unitID, s.modbus.ReadTimeout)
		s.devices[m.MachineID] = d
	}
	return d
}

func (s *Scanner) acquire(machineID string) bool {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if s.locks[machineID] {
		return false
	}
	s.locks[machineID] = true
	return true
}

func (s *Scanner) release(machineID string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.locks, machineID)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
