package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists the discovered device inventory so the bridge can start
// with its last known devices when discovery is unavailable.
type Repository interface {
	// Upsert inserts or replaces a device. DiscoveredAt is kept from the
	// first insert.
	Upsert(ctx context.Context, d Device) error

	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns devices in first-discovery order.
	List(ctx context.Context) ([]Device, error)

	// DeleteMissing removes every device whose ID is not in keep.
	DeleteMissing(ctx context.Context, keep []string) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or updates a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - d: Device to store; ID, Name and Kind are required
//
// Returns:
//   - error: ErrInvalidDevice on missing fields, otherwise the database error
func (r *SQLiteRepository) Upsert(ctx context.Context, d Device) error {
	if d.ID == "" || d.Name == "" || d.Kind == "" {
		return fmt.Errorf("%w: id, name and kind are required", ErrInvalidDevice)
	}

	caps := d.Capabilities
	if caps == nil {
		caps = []Capability{}
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, kind, vendor_type, hub_id, capabilities, discovered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			vendor_type = excluded.vendor_type,
			hub_id = excluded.hub_id,
			capabilities = excluded.capabilities,
			updated_at = excluded.updated_at`,
		d.ID, d.Name, string(d.Kind), d.VendorType, nullString(d.HubID), string(capsJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// GetByID retrieves a device by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, vendor_type, hub_id, capabilities, discovered_at, updated_at
		FROM devices
		WHERE id = ?`, id)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices in the order they were first discovered.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, vendor_type, hub_id, capabilities, discovered_at, updated_at
		FROM devices
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// DeleteMissing removes devices no longer present on the account.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - keep: IDs from the latest successful discovery
//
// Returns:
//   - int64: Number of devices removed
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) DeleteMissing(ctx context.Context, keep []string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	existing, err := tx.QueryContext(ctx, "SELECT id FROM devices")
	if err != nil {
		return 0, fmt.Errorf("querying device ids: %w", err)
	}
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	var stale []string
	for existing.Next() {
		var id string
		if err := existing.Scan(&id); err != nil {
			existing.Close()
			return 0, fmt.Errorf("scanning device id: %w", err)
		}
		if !keepSet[id] {
			stale = append(stale, id)
		}
	}
	existing.Close()
	if err := existing.Err(); err != nil {
		return 0, fmt.Errorf("iterating device ids: %w", err)
	}

	var removed int64
	for _, id := range stale {
		res, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
		if err != nil {
			return 0, fmt.Errorf("deleting device %s: %w", id, err)
		}
		n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports rows affected
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return removed, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d            Device
		kind         string
		hubID        sql.NullString
		capsJSON     string
		discoveredAt string
		updatedAt    string
	)

	if err := row.Scan(&d.ID, &d.Name, &kind, &d.VendorType, &hubID, &capsJSON, &discoveredAt, &updatedAt); err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.HubID = hubID.String
	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}

	var err error
	if d.DiscoveredAt, err = parseTimestamp(discoveredAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}
