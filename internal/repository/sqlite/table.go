package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/repository"
)

var _ repository.TableRepository = (*DB)(nil)

// CreateTable inserts table and fills in its ID and timestamps.
// Name uniqueness is checked by the caller, not by a constraint.
func (db *DB) CreateTable(ctx context.Context, table *model.Table) error {
	now := time.Now().UTC()
	table.ID = xid.New().String()
	table.CreatedAt = now
	table.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tables (id, profile_id, name, capacity, location, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		table.ID,
		table.ProfileID,
		table.Name,
		table.Capacity,
		nullString(table.Location),
		nullString(table.Description),
		table.CreatedAt,
		table.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating table: %w", err)
	}
	return nil
}

const tableColumns = `id, profile_id, name, capacity, location, description, created_at, updated_at`

func scanTable(row interface{ Scan(...any) error }) (*model.Table, error) {
	var (
		t                     model.Table
		location, description sql.NullString
	)
	if err := row.Scan(
		&t.ID,
		&t.ProfileID,
		&t.Name,
		&t.Capacity,
		&location,
		&description,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Location = location.String
	t.Description = description.String
	return &t, nil
}

func (db *DB) GetTable(ctx context.Context, profileID, id string) (*model.Table, error) {
	t, err := scanTable(db.conn.QueryRowContext(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE id = ? AND profile_id = ?`, id, profileID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("table", id)
		}
		return nil, fmt.Errorf("sqlite: getting table %s: %w", id, err)
	}
	return t, nil
}

// ListTables returns the profile's tables, newest first.
func (db *DB) ListTables(ctx context.Context, profileID string) ([]model.Table, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM tables
		 WHERE profile_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tables: %w", err)
	}
	defer rows.Close()

	tables := []model.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning table row: %w", err)
		}
		tables = append(tables, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating table rows: %w", err)
	}
	return tables, nil
}

func (db *DB) DeleteTable(ctx context.Context, profileID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM tables WHERE id = ? AND profile_id = ?`, id, profileID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting table %s: %w", id, err)
	}
	return requireAffected(result, "table", id)
}
