package planner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
)

const (
	// guestListIDAlphabet and guestListIDLength define the opaque id of a
	// published list: 62^12 possibilities.
	guestListIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	guestListIDLength   = 12

	msgNoConfirmedGuests = "No confirmed guests with table assignments found"
	msgGuestListNotFound = "Guest list not found"
)

var (
	slugStrip  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpace  = regexp.MustCompile(`\s+`)
	slugHyphen = regexp.MustCompile(`-+`)
)

// Slug turns a wedding name into the last segment of a published-list URL:
// "  Jane & John's Big Day!!  " → "jane-johns-big-day". An empty name
// slugs as "wedding".
func Slug(weddingName string) string {
	if strings.TrimSpace(weddingName) == "" {
		weddingName = "wedding"
	}
	s := strings.ToLower(weddingName)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpace.ReplaceAllString(s, "-")
	s = slugHyphen.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NewGuestListID returns a fresh 12-character alphanumeric id.
func NewGuestListID() (string, error) {
	id, err := gonanoid.Generate(guestListIDAlphabet, guestListIDLength)
	if err != nil {
		return "", fmt.Errorf("planner: generating guest list id: %w", err)
	}
	return id, nil
}

// PublicURL is where the list with uniqueID is shared.
func (m *Manager) PublicURL(uniqueID, weddingName string) string {
	return fmt.Sprintf("%s/guest-list/%s/%s", strings.TrimRight(m.cfg.BaseURL, "/"), uniqueID, Slug(weddingName))
}

// ensureGuestListID returns the profile's published-list id, creating and
// saving one on the profile the first time. The returned profile is the
// freshest copy.
func (m *Manager) ensureGuestListID(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	if profile.GuestListID != "" {
		return profile, nil
	}

	id, err := NewGuestListID()
	if err != nil {
		return nil, err
	}
	updated, err := m.profiles.UpdateProfile(ctx, model.ProfilePatch{GuestListID: &id})
	if err != nil {
		return nil, fmt.Errorf("planner: saving guest list id: %w", err)
	}
	return updated, nil
}

// GenerateGuestListLink returns the profile's published-list URL. The first
// call assigns the id; later calls only rebuild the URL and write nothing.
func (m *Manager) GenerateGuestListLink(ctx context.Context) (string, error) {
	defer m.begin()()

	profile := m.profiles.Profile()
	if profile == nil {
		return "", m.fail("guest_list_link", apperror.Unauthorized(msgNoProfile))
	}
	profile, err := m.ensureGuestListID(ctx, profile)
	if err != nil {
		return "", m.fail("guest_list_link", err)
	}
	return m.PublicURL(profile.GuestListID, profile.WeddingName), nil
}

// GenerateComprehensiveGuestList publishes the confirmed, seated guests
// under the profile's published-list id. An earlier snapshot with that id
// is replaced in the same write.
func (m *Manager) GenerateComprehensiveGuestList(ctx context.Context) (*model.PublishResult, error) {
	defer m.begin()()

	profile := m.profiles.Profile()
	if profile == nil {
		return nil, m.fail("publish", apperror.Unauthorized(msgNoProfile))
	}

	guests := m.ConfirmedGuestsWithTables()
	if len(guests) == 0 {
		return nil, m.fail("publish", apperror.ValidationFailed("", msgNoConfirmedGuests))
	}

	profile, err := m.ensureGuestListID(ctx, profile)
	if err != nil {
		return nil, m.fail("publish", err)
	}

	weddingName := profile.WeddingName
	if weddingName == "" {
		weddingName = profile.FullName + "'s Wedding"
	}
	list, err := m.store.PublishGuestList(ctx, &model.PublishedGuestList{
		UniqueID:    profile.GuestListID,
		ProfileID:   profile.ID,
		WeddingName: weddingName,
		WeddingDate: profile.WeddingDate,
		GuestData:   guests,
	})
	if err != nil {
		return nil, m.fail("publish", fmt.Errorf("planner: publishing guest list: %w", err))
	}

	m.rec.RecordPublish(len(guests))
	return &model.PublishResult{
		UniqueID:   list.UniqueID,
		URL:        m.PublicURL(list.UniqueID, profile.WeddingName),
		GuestCount: len(guests),
	}, nil
}

// GetPublicGuestList reads a published snapshot. It needs no signed-in
// user and never looks at the live guest or table rows.
func (m *Manager) GetPublicGuestList(ctx context.Context, uniqueID string) (*model.PublishedGuestList, error) {
	return GetPublicGuestList(ctx, m.store, uniqueID)
}

// GetPublicGuestList is the Manager-free form of the public read, used by
// handlers serving visitors who have no workspace.
func GetPublicGuestList(ctx context.Context, store Store, uniqueID string) (*model.PublishedGuestList, error) {
	list, err := store.GetPublishedGuestList(ctx, strings.TrimSpace(uniqueID))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage(msgGuestListNotFound)
		}
		return nil, fmt.Errorf("planner: fetching guest list: %w", err)
	}
	return list, nil
}
