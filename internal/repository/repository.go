// Package repository declares the storage contracts the services depend on.
// Every row-level method is scoped by profile id: a caller can never read or
// write another profile's guests, tables or published lists through them.
package repository

import (
	"context"
	"time"

	"github.com/sakif/wedchart/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	RevokeSession(ctx context.Context, id string, at time.Time) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

type ProfileRepository interface {
	CreateProfile(ctx context.Context, profile *model.Profile) error
	GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error
}

type TableRepository interface {
	CreateTable(ctx context.Context, table *model.Table) error
	GetTable(ctx context.Context, profileID, id string) (*model.Table, error)
	ListTables(ctx context.Context, profileID string) ([]model.Table, error)
	DeleteTable(ctx context.Context, profileID, id string) error
}

type GuestRepository interface {
	CreateGuest(ctx context.Context, guest *model.Guest) error
	GetGuest(ctx context.Context, profileID, id string) (*model.Guest, error)
	ListGuests(ctx context.Context, profileID string) ([]model.Guest, error)
	UpdateGuest(ctx context.Context, guest *model.Guest) error
	DeleteGuest(ctx context.Context, profileID, id string) error
}

type GuestListRepository interface {
	UpsertGuestList(ctx context.Context, list *model.PublishedGuestList) error
	GetGuestListByUniqueID(ctx context.Context, uniqueID string) (*model.PublishedGuestList, error)
}

// Store bundles every repository; *sqlite.DB satisfies it.
type Store interface {
	UserRepository
	SessionRepository
	ProfileRepository
	TableRepository
	GuestRepository
	GuestListRepository
}
