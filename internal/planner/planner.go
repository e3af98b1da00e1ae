// Package planner is the Guest/Table Manager: an in-memory mirror of one
// profile's guests and tables, and every operation that changes them.
//
// A Manager belongs to one signed-in workspace. Operations run one at a
// time in submission order; each calls the data service, then applies its
// result to the mirror. Changes made elsewhere (another tab, another device)
// arrive on a realtime subscription and go through the same reducer, so the
// echo of a local write is harmless.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/mirror"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/realtime"
)

const msgNoProfile = "No profile found"

// Store is the data service as the Manager uses it. *service.DataService
// implements it.
type Store interface {
	ListTables(ctx context.Context, profileID string) ([]model.Table, error)
	CreateTable(ctx context.Context, table *model.Table) (*model.Table, error)
	DeleteTable(ctx context.Context, profileID, id string) error

	ListGuests(ctx context.Context, profileID string) ([]model.Guest, error)
	CreateGuest(ctx context.Context, guest *model.Guest) (*model.Guest, error)
	UpdateGuest(ctx context.Context, profileID, id string, patch model.GuestPatch) (*model.Guest, error)
	DeleteGuest(ctx context.Context, profileID, id string) error

	PublishGuestList(ctx context.Context, list *model.PublishedGuestList) (*model.PublishedGuestList, error)
	GetPublishedGuestList(ctx context.Context, uniqueID string) (*model.PublishedGuestList, error)
}

// Feed opens realtime subscriptions. *realtime.Broker implements it.
type Feed interface {
	Subscribe(profileID string, relations ...model.Relation) *realtime.Subscription
}

// ProfileSource is the signed-in user's profile. *session.Manager
// implements it.
type ProfileSource interface {
	// Profile returns a copy of the current profile, or nil.
	Profile() *model.Profile
	IsAuthenticated() bool
	UpdateProfile(ctx context.Context, patch model.ProfilePatch) (*model.Profile, error)
}

// Recorder receives import and publish counters. *metrics.Collector
// implements it.
type Recorder interface {
	RecordImportRows(outcome string, n int)
	RecordPublish(guests int)
}

type nopRecorder struct{}

func (nopRecorder) RecordImportRows(string, int) {}
func (nopRecorder) RecordPublish(int)            {}

// Config holds what a Manager needs besides its collaborators.
type Config struct {
	// BaseURL is the origin published-list links are built on,
	// e.g. "https://wedchart.example".
	BaseURL string
}

// Manager mirrors one profile's guests and tables.
type Manager struct {
	store    Store
	feed     Feed
	profiles ProfileSource
	cfg      Config
	rec      Recorder
	logger   *slog.Logger

	// opMu serializes operations. mu guards everything below it and is
	// never held across a remote call.
	opMu sync.Mutex

	mu          sync.RWMutex
	guests      *guestBook
	tables      *mirror.Collection[model.Table]
	loading     bool
	lastErr     string
	initialized bool
	loadedFor   string
	sub         *realtime.Subscription
	subDone     chan struct{}
}

// New creates a Manager with an empty mirror. rec may be nil.
func New(store Store, feed Feed, profiles ProfileSource, cfg Config, rec Recorder, logger *slog.Logger) *Manager {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Manager{
		store:    store,
		feed:     feed,
		profiles: profiles,
		cfg:      cfg,
		rec:      rec,
		logger:   logger,
		guests:   newGuestBook(),
		tables:   mirror.New(func(t model.Table) string { return t.ID }),
	}
}

// begin starts an operation: it waits for the previous one, raises the
// loading flag and clears the last error. Call the returned func when done.
func (m *Manager) begin() (end func()) {
	m.opMu.Lock()
	m.mu.Lock()
	m.loading = true
	m.lastErr = ""
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		m.opMu.Unlock()
	}
}

// fail records err as the last error and returns it.
func (m *Manager) fail(op string, err error) error {
	msg := apperror.Message(err)
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()

	m.logger.Error("planner operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return err
}

func (m *Manager) currentProfileID() string {
	if p := m.profiles.Profile(); p != nil {
		return p.ID
	}
	return ""
}

// ===== STATE =====

// Guests returns a copy of the mirrored guests.
func (m *Manager) Guests() []model.Guest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.guests.rows.Items()
}

// Tables returns a copy of the mirrored tables.
func (m *Manager) Tables() []model.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.Items()
}

func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Err returns the message of the last failed operation, or "".
func (m *Manager) Err() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// ===== DERIVED VIEWS =====

// GuestsWithTableNames annotates every guest with its table's name:
// "Unassigned" without a table, "Unknown" when the table is not mirrored.
func (m *Manager) GuestsWithTableNames() []model.GuestWithTable {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.GuestWithTable, 0, m.guests.rows.Len())
	m.guests.rows.Each(func(g model.Guest) bool {
		name := "Unassigned"
		if g.TableID != "" {
			name = "Unknown"
			if t, ok := m.tables.Get(g.TableID); ok {
				name = t.Name
			}
		}
		out = append(out, model.GuestWithTable{Guest: g, TableName: name})
		return true
	})
	return out
}

// TableOptions lists the tables for a picker, led by an "Unassigned"
// option with a nil value.
func (m *Manager) TableOptions() []model.TableOption {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.TableOption, 0, m.tables.Len()+1)
	out = append(out, model.TableOption{Label: "Unassigned"})
	m.tables.Each(func(t model.Table) bool {
		id := t.ID
		out = append(out, model.TableOption{Label: t.Name, Value: &id})
		return true
	})
	return out
}

// ConfirmedGuestsWithTables is the snapshot a publish writes: confirmed
// guests whose table is mirrored. Guests at an unknown table are left out.
func (m *Manager) ConfirmedGuestsWithTables() []model.PublicGuest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.confirmedLocked()
}

func (m *Manager) confirmedLocked() []model.PublicGuest {
	out := []model.PublicGuest{}
	m.guests.rows.Each(func(g model.Guest) bool {
		if g.Status != model.StatusConfirmed || g.TableID == "" {
			return true
		}
		if t, ok := m.tables.Get(g.TableID); ok {
			out = append(out, model.PublicGuest{Name: g.Name, TableName: t.Name})
		}
		return true
	})
	return out
}

// ===== LIFECYCLE =====

// InitializeData loads the profile's tables and guests and starts mirroring
// remote changes. It does nothing when already initialized or when nobody
// is signed in.
func (m *Manager) InitializeData(ctx context.Context) error {
	defer m.begin()()

	m.mu.RLock()
	done := m.initialized
	m.mu.RUnlock()
	if done || !m.profiles.IsAuthenticated() {
		return nil
	}

	profileID := m.currentProfileID()
	if profileID == "" {
		return m.fail("initialize", apperror.Unauthorized(msgNoProfile))
	}

	var (
		tables []model.Table
		guests []model.Guest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tables, err = m.store.ListTables(gctx, profileID)
		return err
	})
	g.Go(func() error {
		var err error
		guests, err = m.store.ListGuests(gctx, profileID)
		return err
	})
	if err := g.Wait(); err != nil {
		return m.fail("initialize", fmt.Errorf("planner: loading data: %w", err))
	}

	m.mu.Lock()
	m.tables.Replace(tables)
	m.guests.replace(guests)
	m.loadedFor = profileID
	m.initialized = true
	m.mu.Unlock()

	m.subscribe(profileID)

	m.logger.Info("planner initialized",
		slog.String("profile_id", profileID),
		slog.Int("guests", len(guests)),
		slog.Int("tables", len(tables)),
	)
	return nil
}

// FetchGuests reloads the guest list from the data service.
func (m *Manager) FetchGuests(ctx context.Context) error {
	defer m.begin()()

	profileID := m.currentProfileID()
	if profileID == "" {
		return m.fail("fetch_guests", apperror.Unauthorized(msgNoProfile))
	}
	guests, err := m.store.ListGuests(ctx, profileID)
	if err != nil {
		return m.fail("fetch_guests", fmt.Errorf("planner: fetching guests: %w", err))
	}

	m.mu.Lock()
	m.guests.replace(guests)
	m.mu.Unlock()
	return nil
}

// FetchTables reloads the table list from the data service.
func (m *Manager) FetchTables(ctx context.Context) error {
	defer m.begin()()

	profileID := m.currentProfileID()
	if profileID == "" {
		return m.fail("fetch_tables", apperror.Unauthorized(msgNoProfile))
	}
	tables, err := m.store.ListTables(ctx, profileID)
	if err != nil {
		return m.fail("fetch_tables", fmt.Errorf("planner: fetching tables: %w", err))
	}

	m.mu.Lock()
	m.tables.Replace(tables)
	m.mu.Unlock()
	return nil
}

// ResetStore empties the mirror and closes the realtime subscription. It is
// safe to call any number of times. An operation in flight finishes first.
func (m *Manager) ResetStore() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.guests.clear()
	m.tables.Clear()
	m.lastErr = ""
	m.initialized = false
	m.loadedFor = ""
	sub, done := m.sub, m.subDone
	m.sub, m.subDone = nil, nil
	m.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
		m.logger.Debug("planner realtime subscription closed", slog.String("subscription_id", sub.ID()))
	}
}
