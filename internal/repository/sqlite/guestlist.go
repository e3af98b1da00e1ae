package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/repository"
)

var _ repository.GuestListRepository = (*DB)(nil)

// UpsertGuestList creates the published list for list.UniqueID, or
// overwrites its name, date and guest data when one exists. It is a single
// statement, so a reader never sees a half-written list.
//
// On return list holds the stored row's id and timestamps.
func (db *DB) UpsertGuestList(ctx context.Context, list *model.PublishedGuestList) error {
	if list.GuestData == nil {
		list.GuestData = []model.PublicGuest{}
	}
	data, err := json.Marshal(list.GuestData)
	if err != nil {
		return fmt.Errorf("sqlite: encoding guest data: %w", err)
	}

	now := time.Now().UTC()
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO public_guest_lists (id, unique_id, profile_id, wedding_name, wedding_date, guest_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(unique_id) DO UPDATE SET
		     wedding_name = excluded.wedding_name,
		     wedding_date = excluded.wedding_date,
		     guest_data   = excluded.guest_data,
		     updated_at   = excluded.updated_at
		 WHERE public_guest_lists.profile_id = excluded.profile_id
		 RETURNING id`,
		xid.New().String(),
		list.UniqueID,
		list.ProfileID,
		list.WeddingName,
		nullString(list.WeddingDate),
		string(data),
		now,
		now,
	).Scan(&list.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			// The unique id exists but belongs to another profile.
			return apperror.Forbidden("Guest list belongs to another account")
		}
		return fmt.Errorf("sqlite: upserting guest list %s: %w", list.UniqueID, err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM public_guest_lists WHERE id = ?`, list.ID,
	).Scan(&list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading back guest list %s: %w", list.UniqueID, err)
	}
	return nil
}

// GetGuestListByUniqueID reads a published list. It is not scoped by
// profile: published lists are public.
func (db *DB) GetGuestListByUniqueID(ctx context.Context, uniqueID string) (*model.PublishedGuestList, error) {
	var (
		l           model.PublishedGuestList
		weddingDate sql.NullString
		data        string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, unique_id, profile_id, wedding_name, wedding_date, guest_data, created_at, updated_at
		 FROM public_guest_lists WHERE unique_id = ?`,
		uniqueID,
	).Scan(
		&l.ID,
		&l.UniqueID,
		&l.ProfileID,
		&l.WeddingName,
		&weddingDate,
		&data,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundMessage("Guest list not found")
		}
		return nil, fmt.Errorf("sqlite: getting guest list %s: %w", uniqueID, err)
	}
	l.WeddingDate = weddingDate.String

	if err := json.Unmarshal([]byte(data), &l.GuestData); err != nil {
		return nil, fmt.Errorf("sqlite: decoding guest data for %s: %w", uniqueID, err)
	}
	if l.GuestData == nil {
		l.GuestData = []model.PublicGuest{}
	}
	return &l, nil
}
