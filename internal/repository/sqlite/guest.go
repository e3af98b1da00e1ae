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

var _ repository.GuestRepository = (*DB)(nil)

// CreateGuest inserts guest and fills in its ID and timestamps. An empty
// Status is stored as pending.
func (db *DB) CreateGuest(ctx context.Context, guest *model.Guest) error {
	now := time.Now().UTC()
	guest.ID = xid.New().String()
	guest.CreatedAt = now
	guest.UpdatedAt = now
	if guest.Status == "" {
		guest.Status = model.StatusPending
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO guests (id, profile_id, name, table_id, status, dietary_restrictions,
		                     is_plus_one, primary_guest_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		guest.ID,
		guest.ProfileID,
		guest.Name,
		nullString(guest.TableID),
		guest.Status,
		nullString(guest.DietaryRestrictions),
		guest.IsPlusOne,
		nullString(guest.PrimaryGuestID),
		guest.CreatedAt,
		guest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating guest: %w", err)
	}
	return nil
}

const guestColumns = `id, profile_id, name, table_id, status, dietary_restrictions,
	is_plus_one, primary_guest_id, created_at, updated_at`

func scanGuest(row interface{ Scan(...any) error }) (*model.Guest, error) {
	var (
		g                         model.Guest
		tableID, dietary, primary sql.NullString
	)
	if err := row.Scan(
		&g.ID,
		&g.ProfileID,
		&g.Name,
		&tableID,
		&g.Status,
		&dietary,
		&g.IsPlusOne,
		&primary,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	g.TableID = tableID.String
	g.DietaryRestrictions = dietary.String
	g.PrimaryGuestID = primary.String
	return &g, nil
}

func (db *DB) GetGuest(ctx context.Context, profileID, id string) (*model.Guest, error) {
	g, err := scanGuest(db.conn.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE id = ? AND profile_id = ?`, id, profileID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("guest", id)
		}
		return nil, fmt.Errorf("sqlite: getting guest %s: %w", id, err)
	}
	return g, nil
}

// ListGuests returns the profile's guests, newest first.
func (db *DB) ListGuests(ctx context.Context, profileID string) ([]model.Guest, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM guests
		 WHERE profile_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing guests: %w", err)
	}
	defer rows.Close()

	guests := []model.Guest{}
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning guest row: %w", err)
		}
		guests = append(guests, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating guest rows: %w", err)
	}
	return guests, nil
}

// UpdateGuest writes the mutable columns of guest: name, table, status,
// dietary restrictions. The plus-one linkage is fixed at creation.
func (db *DB) UpdateGuest(ctx context.Context, guest *model.Guest) error {
	guest.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE guests
		 SET name = ?, table_id = ?, status = ?, dietary_restrictions = ?, updated_at = ?
		 WHERE id = ? AND profile_id = ?`,
		guest.Name,
		nullString(guest.TableID),
		guest.Status,
		nullString(guest.DietaryRestrictions),
		guest.UpdatedAt,
		guest.ID,
		guest.ProfileID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating guest %s: %w", guest.ID, err)
	}
	return requireAffected(result, "guest", guest.ID)
}

func (db *DB) DeleteGuest(ctx context.Context, profileID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM guests WHERE id = ? AND profile_id = ?`, id, profileID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting guest %s: %w", id, err)
	}
	return requireAffected(result, "guest", id)
}
