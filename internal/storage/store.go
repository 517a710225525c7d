package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/interfaces"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// Store is the full persistence surface: what the core needs plus the
// provisioning operations used at startup.
type Store interface {
	interfaces.MachineStore
	interfaces.ShiftStore

	InsertMachine(ctx context.Context, m *types.Machine) error
	DeleteMachine(ctx context.Context, machineID string) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresClient)(nil)
	_ Store = (*SQLiteClient)(nil)
)

// Open connects to the configured backend and creates its tables.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	logger = logger.Named("storage")

	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory storage, records are lost on restart")
		return NewMemoryStore(), nil

	case "sqlite":
		client, err := NewSQLiteClient(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := client.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("SQLite storage ready", zap.String("path", cfg.SQLitePath))
		return client, nil

	case "postgres":
		client, err := NewPostgresClient(cfg)
		if err != nil {
			return nil, err
		}
		if err := client.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("PostgreSQL storage ready",
			zap.String("host", cfg.Host),
			zap.String("database", cfg.Database))
		return client, nil
	}

	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// Provision makes sure every configured machine exists. New machines start
// offline; existing ones get their provisioning fields refreshed and keep
// their runtime state.
func Provision(ctx context.Context, store Store, machines []config.MachineConfig, now func() time.Time) error {
	for _, mc := range machines {
		existing, err := store.GetMachine(ctx, mc.MachineID)
		switch {
		case errors.Is(err, ErrNotFound):
			t := now()
			m := &types.Machine{
				Status:    types.MachineOffline,
				CreatedAt: t,
				UpdatedAt: t,
			}
			applyMachineConfig(m, mc)
			if err := store.InsertMachine(ctx, m); err != nil {
				return fmt.Errorf("failed to insert machine %s: %w", mc.MachineID, err)
			}
		case err != nil:
			return fmt.Errorf("failed to load machine %s: %w", mc.MachineID, err)
		default:
			applyMachineConfig(existing, mc)
			existing.UpdatedAt = now()
			if err := store.UpdateMachine(ctx, existing); err != nil {
				return fmt.Errorf("failed to update machine %s: %w", mc.MachineID, err)
			}
		}
	}
	return nil
}

func applyMachineConfig(m *types.Machine, mc config.MachineConfig) {
	m.MachineID = mc.MachineID
	m.Name = mc.Name
	m.Type = mc.Type
	m.UserID = mc.UserID
	m.IPAddress = mc.IPAddress
	m.Port = mc.Port
	m.SlaveID = mc.SlaveID
}
