// Command simulator serves a fake filling machine over Modbus TCP. It
// runs shifts with pauses, stops at the end of each shift and leaves the
// finished shift in the next backup slot, the way the PLC program does.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/modbus/slave"
)

type options struct {
	Listen     string        `long:"listen" default:"127.0.0.1:1502" description:"Address to serve Modbus TCP on"`
	Type       string        `long:"type" default:"Salt Filling Machine" description:"Machine type to simulate"`
	TypesDir   []string      `long:"types-dir" description:"Directory with machine type overrides (repeatable)"`
	Shift      uint32        `long:"shift" default:"1" description:"First shift number"`
	Tick       time.Duration `long:"tick" default:"1s" description:"Simulation step"`
	ShiftTicks int           `long:"shift-ticks" default:"120" description:"Steps per shift"`
	PauseEvery int           `long:"pause-every" default:"30" description:"Pause for a few steps every n steps, 0 disables"`
	PauseTicks int           `long:"pause-ticks" default:"5" description:"Length of a pause in steps"`
	FillRate   float32       `long:"fill-rate" default:"2.5" description:"Kilograms filled per variant per step"`
	Operator   string        `long:"operator" default:"SIM" description:"Operator name written to the block"`
	Verbose    bool          `long:"verbose" short:"v" description:"Debug logging"`
}

const (
	stateRunning = 1
	statePaused  = 2
	stateStopped = 3
)

type machine struct {
	desc   *machinetype.Descriptor
	srv    *slave.Server
	opts   options
	logger *zap.Logger

	shift    uint32
	tick     int
	start    time.Time
	weights  map[string]float32
	bottles  map[string]uint32
	nextSlot int
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Println(err)
		os.Exit(1)
	}

	zc := zap.NewDevelopmentConfig()
	if !opts.Verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	registry, err := machinetype.NewRegistry(opts.TypesDir, logger)
	if err != nil {
		logger.Fatal("Failed to load machine types", zap.Error(err))
	}
	desc, ok := registry.Lookup(opts.Type)
	if !ok {
		logger.Fatal("Unknown machine type",
			zap.String("type", opts.Type),
			zap.Strings("known", registry.Types()))
	}

	srv := slave.NewServer(logger)
	if err := srv.Listen(opts.Listen); err != nil {
		logger.Fatal("Failed to listen", zap.String("address", opts.Listen), zap.Error(err))
	}
	defer srv.Close()

	m := &machine{desc: desc, srv: srv, opts: opts, logger: logger, shift: opts.Shift}
	// Every slot starts out consumed so only shifts finished from now on
	// show up as backups.
	srv.SetRegisters(desc.Backup.StatusRegister, []uint16{desc.Backup.AllSlotsMask()})
	m.startShift(time.Now())

	logger.Info("Simulator listening",
		zap.String("address", srv.Addr()),
		zap.String("type", desc.Type),
		zap.Uint32("shift", m.shift))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Simulator stopped")
			return
		case now := <-ticker.C:
			m.step(now)
		}
	}
}

func (m *machine) startShift(now time.Time) {
	m.tick = 0
	m.start = now
	m.weights = make(map[string]float32)
	m.bottles = make(map[string]uint32)
	m.publish(stateRunning, nil)
	m.logger.Info("Shift started", zap.Uint32("shift", m.shift))
}

func (m *machine) step(now time.Time) {
	m.tick++

	if m.tick >= m.opts.ShiftTicks {
		m.finishShift(now)
		m.shift++
		m.startShift(now)
		return
	}

	state := uint16(stateRunning)
	if m.opts.PauseEvery > 0 && m.tick%m.opts.PauseEvery < m.opts.PauseTicks && m.tick >= m.opts.PauseEvery {
		state = statePaused
	}
	if state == stateRunning {
		for _, w := range m.desc.Weights {
			m.weights[w.Name] += m.opts.FillRate
		}
		for _, b := range m.desc.Bottles {
			m.bottles[b.Name]++
		}
	}
	m.publish(state, nil)
}

// finishShift reports the shift as stopped and copies it into the next
// backup slot, clearing that slot's consumed bit.
func (m *machine) finishShift(now time.Time) {
	block := m.publish(stateStopped, &now)

	layout := m.desc.Backup
	if layout.Slots == 0 {
		return
	}
	slot := m.nextSlot
	m.nextSlot = (m.nextSlot + 1) % layout.Slots

	m.srv.SetRegisters(layout.SlotAddress(slot), block)
	status := m.srv.Register(layout.StatusRegister) &^ (uint16(1) << slot)
	m.srv.SetRegisters(layout.StatusRegister, []uint16{status})

	m.logger.Info("Shift finished",
		zap.Uint32("shift", m.shift),
		zap.Int("backup_slot", slot))
}

func (m *machine) publish(state uint16, end *time.Time) []uint16 {
	b := m.desc.NewBlock().
		SetStatus(codec.StatusWord{
			MachineState: state,
			TankFull:     []bool{true},
			LineActive:   []bool{state == stateRunning},
		}).
		SetShiftNumber(m.shift).
		SetTargetWeight(float32(m.opts.ShiftTicks) * m.opts.FillRate).
		SetStartTime(m.start).
		SetOperator(m.opts.Operator)
	for name, w := range m.weights {
		b.SetWeight(name, w)
	}
	for name, n := range m.bottles {
		b.SetBottles(name, n)
	}
	if end != nil {
		b.SetEndTime(*end)
	}

	values := b.Values()
	m.srv.SetRegisters(m.desc.BlockStart, values)
	m.logger.Debug("Block updated",
		zap.Uint32("shift", m.shift),
		zap.Uint16("state", state),
		zap.Int("tick", m.tick))
	return values
}
