package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresClient stores machines and shifts as JSONB documents keyed by
// their business id.
type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

func (p *PostgresClient) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (p *PostgresClient) InsertMachine(ctx context.Context, m *types.Machine) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal machine: %w", err)
	}

	result, err := p.pool.Exec(ctx, `
		INSERT INTO machines (machine_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (machine_id) DO NOTHING
	`, m.MachineID, doc, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert machine: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (p *PostgresClient) ListMachines(ctx context.Context) ([]*types.Machine, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT document FROM machines
		ORDER BY created_at, machine_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	machines := make([]*types.Machine, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		var m types.Machine
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal machine: %w", err)
		}
		machines = append(machines, &m)
	}

	return machines, rows.Err()
}

func (p *PostgresClient) GetMachine(ctx context.Context, machineID string) (*types.Machine, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `
		SELECT document FROM machines WHERE machine_id = $1
	`, machineID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load machine: %w", err)
	}

	var m types.Machine
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal machine: %w", err)
	}
	return &m, nil
}

func (p *PostgresClient) UpdateMachine(ctx context.Context, m *types.Machine) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal machine: %w", err)
	}

	result, err := p.pool.Exec(ctx, `
		UPDATE machines SET document = $2, updated_at = now()
		WHERE machine_id = $1
	`, m.MachineID, doc)
	if err != nil {
		return fmt.Errorf("failed to update machine: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMachine removes a machine; its shifts go with it.
func (p *PostgresClient) DeleteMachine(ctx context.Context, machineID string) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM machines WHERE machine_id = $1
	`, machineID)
	if err != nil {
		return fmt.Errorf("failed to delete machine: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresClient) FindShift(ctx context.Context, shiftID string) (*types.Shift, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `
		SELECT document FROM shifts WHERE shift_id = $1
	`, shiftID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shift: %w", err)
	}

	var s types.Shift
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shift: %w", err)
	}
	return &s, nil
}

func (p *PostgresClient) FindShiftsByMachine(ctx context.Context, machineID string, statuses ...types.ShiftStatus) ([]*types.Shift, error) {
	filter := make([]string, len(statuses))
	for i, st := range statuses {
		filter[i] = string(st)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT document FROM shifts
		WHERE machine_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at, shift_id
	`, machineID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	shifts := make([]*types.Shift, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		var s types.Shift
		if err := json.Unmarshal(doc, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shift: %w", err)
		}
		shifts = append(shifts, &s)
	}

	return shifts, rows.Err()
}

func (p *PostgresClient) CreateShift(ctx context.Context, s *types.Shift) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal shift: %w", err)
	}

	result, err := p.pool.Exec(ctx, `
		INSERT INTO shifts (shift_id, machine_id, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (shift_id) DO NOTHING
	`, s.ShiftID, s.MachineID, string(s.Status), doc, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (p *PostgresClient) UpdateShift(ctx context.Context, s *types.Shift) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal shift: %w", err)
	}

	result, err := p.pool.Exec(ctx, `
		UPDATE shifts SET status = $2, document = $3, updated_at = $4
		WHERE shift_id = $1
	`, s.ShiftID, string(s.Status), doc, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
