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

var _ repository.ProfileRepository = (*DB)(nil)

// CreateProfile inserts the profile row for a new account.
func (db *DB) CreateProfile(ctx context.Context, profile *model.Profile) error {
	now := time.Now().UTC()
	profile.ID = xid.New().String()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, full_name, wedding_name, wedding_date, guest_list_id,
		                       email_notifications, marketing_emails, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.UserID,
		profile.FullName,
		nullString(profile.WeddingName),
		nullString(profile.WeddingDate),
		nullString(profile.GuestListID),
		profile.EmailNotifications,
		profile.MarketingEmails,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting profile for user %s: %w", profile.UserID, err)
	}
	return nil
}

// GetProfileByUserID returns the profile owned by userID.
func (db *DB) GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var (
		p                                     model.Profile
		weddingName, weddingDate, guestListID sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, full_name, wedding_name, wedding_date, guest_list_id,
		        email_notifications, marketing_emails, created_at, updated_at
		 FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(
		&p.ID,
		&p.UserID,
		&p.FullName,
		&weddingName,
		&weddingDate,
		&guestListID,
		&p.EmailNotifications,
		&p.MarketingEmails,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqlite: getting profile for user %s: %w", userID, err)
	}
	p.WeddingName = weddingName.String
	p.WeddingDate = weddingDate.String
	p.GuestListID = guestListID.String
	return &p, nil
}

// UpdateProfile writes every mutable column of profile and refreshes
// UpdatedAt. The row is matched on both id and user_id.
func (db *DB) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	profile.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles
		 SET full_name = ?, wedding_name = ?, wedding_date = ?, guest_list_id = ?,
		     email_notifications = ?, marketing_emails = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		profile.FullName,
		nullString(profile.WeddingName),
		nullString(profile.WeddingDate),
		nullString(profile.GuestListID),
		profile.EmailNotifications,
		profile.MarketingEmails,
		profile.UpdatedAt,
		profile.ID,
		profile.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Guest list id already in use")
		}
		return fmt.Errorf("sqlite: updating profile %s: %w", profile.ID, err)
	}
	return requireAffected(result, "profile", profile.ID)
}
