package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/repository"
)

// Publisher receives the change notification for every successful write.
// *realtime.Broker implements it.
type Publisher interface {
	Publish(c model.Change)
}

// DataService is row-level access to one profile's data. Every method is
// scoped by profile id (or, for profiles, by user id) and every write
// publishes a model.Change after it commits.
type DataService struct {
	store  repository.Store
	pub    Publisher
	rec    Recorder
	logger *slog.Logger
	now    func() time.Time
}

// NewDataService creates a DataService. rec may be nil.
func NewDataService(store repository.Store, pub Publisher, rec Recorder, logger *slog.Logger) *DataService {
	return &DataService{
		store:  store,
		pub:    pub,
		rec:    recorderOrNop(rec),
		logger: logger,
		now:    time.Now,
	}
}

// ===== PROFILES =====

func (s *DataService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/data: loading profile: %w", err)
	}
	return p, nil
}

// UpdateProfile applies patch to the user's profile and returns the stored
// row.
func (s *DataService) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.Profile, error) {
	p, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/data: loading profile: %w", err)
	}
	if patch.Empty() {
		return p, nil
	}

	old := *p
	patch.ApplyTo(p)
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("service/data: updating profile: %w", err)
	}

	s.publish(model.RelationProfiles, model.ChangeUpdate, p.ID, *p, old)
	return p, nil
}

// ===== TABLES =====

func (s *DataService) ListTables(ctx context.Context, profileID string) ([]model.Table, error) {
	tables, err := s.store.ListTables(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("service/data: listing tables: %w", err)
	}
	return tables, nil
}

// CreateTable inserts table under table.ProfileID. A zero capacity is
// stored as the default.
func (s *DataService) CreateTable(ctx context.Context, table *model.Table) (*model.Table, error) {
	if table.ProfileID == "" {
		return nil, apperror.Unauthorized("No profile found")
	}
	if table.Capacity <= 0 {
		table.Capacity = model.DefaultTableCapacity
	}
	if err := s.store.CreateTable(ctx, table); err != nil {
		return nil, fmt.Errorf("service/data: creating table: %w", err)
	}

	s.publish(model.RelationTables, model.ChangeInsert, table.ProfileID, *table, nil)
	return table, nil
}

func (s *DataService) DeleteTable(ctx context.Context, profileID, id string) error {
	if err := s.store.DeleteTable(ctx, profileID, id); err != nil {
		return fmt.Errorf("service/data: deleting table %s: %w", id, err)
	}

	s.publish(model.RelationTables, model.ChangeDelete, profileID, nil, model.Table{ID: id, ProfileID: profileID})
	return nil
}

// ===== GUESTS =====

func (s *DataService) ListGuests(ctx context.Context, profileID string) ([]model.Guest, error) {
	guests, err := s.store.ListGuests(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("service/data: listing guests: %w", err)
	}
	return guests, nil
}

// CreateGuest inserts guest under guest.ProfileID.
func (s *DataService) CreateGuest(ctx context.Context, guest *model.Guest) (*model.Guest, error) {
	if guest.ProfileID == "" {
		return nil, apperror.Unauthorized("No profile found")
	}
	if guest.Status != "" && !guest.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("Invalid status %q", guest.Status))
	}
	if guest.IsPlusOne != (guest.PrimaryGuestID != "") {
		return nil, apperror.ValidationFailed("primaryGuestId", "A plus one must reference its primary guest")
	}
	if err := s.store.CreateGuest(ctx, guest); err != nil {
		return nil, fmt.Errorf("service/data: creating guest: %w", err)
	}

	s.publish(model.RelationGuests, model.ChangeInsert, guest.ProfileID, *guest, nil)
	return guest, nil
}

// UpdateGuest applies patch to the guest and returns the stored row.
func (s *DataService) UpdateGuest(ctx context.Context, profileID, id string, patch model.GuestPatch) (*model.Guest, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("Invalid status %q", *patch.Status))
	}

	g, err := s.store.GetGuest(ctx, profileID, id)
	if err != nil {
		return nil, fmt.Errorf("service/data: loading guest %s: %w", id, err)
	}
	old := *g
	patch.ApplyTo(g)
	if err := s.store.UpdateGuest(ctx, g); err != nil {
		return nil, fmt.Errorf("service/data: updating guest %s: %w", id, err)
	}

	s.publish(model.RelationGuests, model.ChangeUpdate, profileID, *g, old)
	return g, nil
}

func (s *DataService) DeleteGuest(ctx context.Context, profileID, id string) error {
	if err := s.store.DeleteGuest(ctx, profileID, id); err != nil {
		return fmt.Errorf("service/data: deleting guest %s: %w", id, err)
	}

	s.publish(model.RelationGuests, model.ChangeDelete, profileID, nil, model.Guest{ID: id, ProfileID: profileID})
	return nil
}

// ===== PUBLISHED LISTS =====

// PublishGuestList writes list, replacing any earlier snapshot with the
// same unique id. Published lists are not broadcast.
func (s *DataService) PublishGuestList(ctx context.Context, list *model.PublishedGuestList) (*model.PublishedGuestList, error) {
	if list.UniqueID == "" {
		return nil, apperror.ValidationFailed("uniqueId", "Guest list id is required")
	}
	if err := s.store.UpsertGuestList(ctx, list); err != nil {
		return nil, fmt.Errorf("service/data: publishing guest list: %w", err)
	}
	s.rec.RecordWrite("public_guest_lists", "upsert")
	s.logger.Info("guest list published",
		slog.String("unique_id", list.UniqueID),
		slog.Int("guests", len(list.GuestData)),
	)
	return list, nil
}

// GetPublishedGuestList reads a snapshot without any ownership check.
func (s *DataService) GetPublishedGuestList(ctx context.Context, uniqueID string) (*model.PublishedGuestList, error) {
	list, err := s.store.GetGuestListByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("service/data: loading guest list: %w", err)
	}
	return list, nil
}

func (s *DataService) publish(rel model.Relation, typ model.ChangeType, profileID string, newRow, oldRow any) {
	s.rec.RecordWrite(string(rel), string(typ))
	if s.pub == nil {
		return
	}
	s.pub.Publish(model.Change{
		Relation:        rel,
		Type:            typ,
		ProfileID:       profileID,
		New:             newRow,
		Old:             oldRow,
		CommitTimestamp: s.now().UTC(),
	})
}
