package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
)

// Repository defines device persistence operations.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*blebox.Snapshot, error)

	// LoadDevices returns every persisted device ordered by id.
	LoadDevices(ctx context.Context) ([]blebox.Snapshot, error)

	// SaveDevice inserts the device or updates its identity.
	SaveDevice(ctx context.Context, s blebox.Snapshot) error

	// DeleteDevice removes a device. Deleting an unknown id is not an error.
	DeleteDevice(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT id, type, address, name, info, updated_at FROM devices`

// GetByID retrieves a device by its BleBox id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*blebox.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	s, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return s, nil
}

// LoadDevices retrieves all devices.
func (r *SQLiteRepository) LoadDevices(ctx context.Context) ([]blebox.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var out []blebox.Snapshot
	for rows.Next() {
		s, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return out, nil
}

// SaveDevice upserts the identity part of s.
func (r *SQLiteRepository) SaveDevice(ctx context.Context, s blebox.Snapshot) error {
	if s.ID == "" || s.Type == "" || s.Address == "" {
		return fmt.Errorf("%w: id, type and address are required", ErrInvalidDevice)
	}

	info := s.Info
	if info == nil {
		info = map[string]any{}
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshalling info: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, type, address, name, info, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			address = excluded.address,
			name = excluded.name,
			info = excluded.info,
			updated_at = excluded.updated_at`,
		s.ID, s.Type, s.Address, s.Name, string(infoJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}
	return nil
}

// DeleteDevice removes a device by id.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*blebox.Snapshot, error) {
	var s blebox.Snapshot
	var infoJSON, updatedAt string

	if err := row.Scan(&s.ID, &s.Type, &s.Address, &s.Name, &infoJSON, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(infoJSON), &s.Info); err != nil {
		return nil, fmt.Errorf("unmarshalling info: %w", err)
	}
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return &s, nil
}
