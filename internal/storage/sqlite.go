package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteClient is the single-file store for edge deployments without a
// database server. Documents are stored as JSON text.
type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(path string) (*SQLiteClient, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

func (c *SQLiteClient) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func (c *SQLiteClient) InsertMachine(ctx context.Context, m *types.Machine) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal machine: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		INSERT INTO machines (machine_id, position, document, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM machines), ?, ?, ?)
		ON CONFLICT (machine_id) DO NOTHING
	`, m.MachineID, string(doc), formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert machine: %w", err)
	}
	return conflictIfUnchanged(result)
}

func (c *SQLiteClient) ListMachines(ctx context.Context) ([]*types.Machine, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT document FROM machines ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	machines := make([]*types.Machine, 0)
	for rows.Next() {
		var m types.Machine
		if err := scanDocument(rows, &m); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, &m)
	}
	return machines, rows.Err()
}

func (c *SQLiteClient) GetMachine(ctx context.Context, machineID string) (*types.Machine, error) {
	row := c.db.QueryRowContext(ctx, `SELECT document FROM machines WHERE machine_id = ?`, machineID)

	var m types.Machine
	if err := scanDocument(row, &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load machine: %w", err)
	}
	return &m, nil
}

func (c *SQLiteClient) UpdateMachine(ctx context.Context, m *types.Machine) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal machine: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE machines SET document = ?, updated_at = ? WHERE machine_id = ?
	`, string(doc), formatTime(time.Now()), m.MachineID)
	if err != nil {
		return fmt.Errorf("failed to update machine: %w", err)
	}
	return notFoundIfUnchanged(result)
}

func (c *SQLiteClient) DeleteMachine(ctx context.Context, machineID string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM machines WHERE machine_id = ?`, machineID)
	if err != nil {
		return fmt.Errorf("failed to delete machine: %w", err)
	}
	return notFoundIfUnchanged(result)
}

func (c *SQLiteClient) FindShift(ctx context.Context, shiftID string) (*types.Shift, error) {
	row := c.db.QueryRowContext(ctx, `SELECT document FROM shifts WHERE shift_id = ?`, shiftID)

	var s types.Shift
	if err := scanDocument(row, &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load shift: %w", err)
	}
	return &s, nil
}

func (c *SQLiteClient) FindShiftsByMachine(ctx context.Context, machineID string, statuses ...types.ShiftStatus) ([]*types.Shift, error) {
	query := `SELECT document FROM shifts WHERE machine_id = ?`
	args := []any{machineID}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at, shift_id`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	shifts := make([]*types.Shift, 0)
	for rows.Next() {
		var s types.Shift
		if err := scanDocument(rows, &s); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		shifts = append(shifts, &s)
	}
	return shifts, rows.Err()
}

func (c *SQLiteClient) CreateShift(ctx context.Context, s *types.Shift) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal shift: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		INSERT INTO shifts (shift_id, machine_id, status, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (shift_id) DO NOTHING
	`, s.ShiftID, s.MachineID, string(s.Status), string(doc), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return conflictIfUnchanged(result)
}

func (c *SQLiteClient) UpdateShift(ctx context.Context, s *types.Shift) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal shift: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE shifts SET status = ?, document = ?, updated_at = ? WHERE shift_id = ?
	`, string(s.Status), string(doc), formatTime(s.UpdatedAt), s.ShiftID)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	return notFoundIfUnchanged(result)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, v any) error {
	var doc string
	if err := row.Scan(&doc); err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), v)
}

// formatTime produces UTC text that sorts chronologically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func conflictIfUnchanged(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func notFoundIfUnchanged(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
