package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/mirror"
	"github.com/sakif/wedchart/internal/model"
)

const (
	msgGuestNameRequired = "Guest name is required"
	msgGuestNameShort    = "Guest name must be at least 2 characters"
	msgGuestExists       = "A guest with this name already exists"
	msgPlusOneExists     = "A guest with the plus one name already exists"
	msgGuestNotFound     = "Guest not found"
)

// validateGuestName applies the name rules shared by every guest write and
// the CSV preview. It returns the messages in the order they apply.
func validateGuestName(name string) []string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return []string{msgGuestNameRequired}
	}
	if utf8.RuneCountInString(trimmed) < 2 {
		return []string{msgGuestNameShort}
	}
	return nil
}

// normalizeTableID maps the "no table" spellings a form can send to "".
func normalizeTableID(id string) string {
	id = strings.TrimSpace(id)
	if id == "Unassigned" {
		return ""
	}
	return id
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// hasGuestNamedLocked reports whether a mirrored guest other than excludeID
// has name. m.mu must be held.
func (m *Manager) hasGuestNamedLocked(name, excludeID string) bool {
	found := false
	m.guests.rows.Each(func(g model.Guest) bool {
		if g.ID != excludeID && sameName(g.Name, name) {
			found = true
			return false
		}
		return true
	})
	return found
}

func (m *Manager) hasGuestNamed(name, excludeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasGuestNamedLocked(name, excludeID)
}

func (m *Manager) applyGuest(op mirror.Op, g model.Guest) {
	m.mu.Lock()
	m.guests.apply(mirror.Event[model.Guest]{Op: op, Source: mirror.Local, Item: g})
	m.mu.Unlock()
}

func (m *Manager) lookupGuest(id string) (model.Guest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.guests.rows.Get(id)
}

// AddGuest adds a guest and, when in.PlusOneName is set, their plus-one at
// the same table with the same status.
//
// Both names are checked before anything is written. If the plus-one
// insert then fails, the primary stays and the failure is only logged.
func (m *Manager) AddGuest(ctx context.Context, in model.GuestInput) (*model.Guest, error) {
	defer m.begin()()

	profileID := m.currentProfileID()
	if profileID == "" {
		return nil, m.fail("add_guest", apperror.Unauthorized(msgNoProfile))
	}
	if errs := validateGuestName(in.Name); len(errs) > 0 {
		return nil, m.fail("add_guest", apperror.ValidationFailed("name", errs[0]))
	}
	if m.hasGuestNamed(in.Name, "") {
		return nil, m.fail("add_guest", apperror.ValidationFailed("name", msgGuestExists))
	}

	status := in.Status
	if status == "" {
		status = model.StatusPending
	}
	if !status.Valid() {
		return nil, m.fail("add_guest", apperror.ValidationFailed("status", fmt.Sprintf("Invalid status %q", status)))
	}

	plusOne := strings.TrimSpace(in.PlusOneName)
	if plusOne != "" {
		if errs := validateGuestName(plusOne); len(errs) > 0 {
			return nil, m.fail("add_guest", apperror.ValidationFailed("plusOneName", errs[0]))
		}
		if m.hasGuestNamed(plusOne, "") || sameName(plusOne, in.Name) {
			return nil, m.fail("add_guest", apperror.ValidationFailed("plusOneName", msgPlusOneExists))
		}
	}

	tableID := normalizeTableID(in.TableID)
	primary, err := m.store.CreateGuest(ctx, &model.Guest{
		ProfileID:           profileID,
		Name:                strings.TrimSpace(in.Name),
		TableID:             tableID,
		Status:              status,
		DietaryRestrictions: strings.TrimSpace(in.DietaryRestrictions),
	})
	if err != nil {
		return nil, m.fail("add_guest", fmt.Errorf("planner: adding guest: %w", err))
	}
	m.applyGuest(mirror.Insert, *primary)

	if plusOne != "" {
		companion, err := m.store.CreateGuest(ctx, &model.Guest{
			ProfileID:      profileID,
			Name:           plusOne,
			TableID:        tableID,
			Status:         status,
			IsPlusOne:      true,
			PrimaryGuestID: primary.ID,
		})
		if err != nil {
			m.logger.Warn("plus one not added",
				slog.String("primary_guest_id", primary.ID),
				slog.String("error", err.Error()),
			)
		} else {
			m.applyGuest(mirror.Insert, *companion)
		}
	}

	out := *primary
	return &out, nil
}

// UpdateGuest writes in over the guest's name, table, status and dietary
// restrictions, then moves every plus-one of the guest to the new table and
// status. A plus-one itself always keeps its primary's table and status.
//
// Plus-one updates are best-effort: a failure is logged and the rest carry
// on.
func (m *Manager) UpdateGuest(ctx context.Context, id string, in model.GuestInput) (*model.Guest, error) {
	defer m.begin()()

	profileID := m.currentProfileID()
	if profileID == "" {
		return nil, m.fail("update_guest", apperror.Unauthorized(msgNoProfile))
	}
	existing, ok := m.lookupGuest(id)
	if !ok {
		return nil, m.fail("update_guest", apperror.NotFoundMessage(msgGuestNotFound))
	}
	if errs := validateGuestName(in.Name); len(errs) > 0 {
		return nil, m.fail("update_guest", apperror.ValidationFailed("name", errs[0]))
	}
	if m.hasGuestNamed(in.Name, id) {
		return nil, m.fail("update_guest", apperror.ValidationFailed("name", msgGuestExists))
	}

	status := in.Status
	if status == "" {
		status = existing.Status
	}
	if !status.Valid() {
		return nil, m.fail("update_guest", apperror.ValidationFailed("status", fmt.Sprintf("Invalid status %q", status)))
	}

	next := existing
	next.Name = strings.TrimSpace(in.Name)
	next.TableID = normalizeTableID(in.TableID)
	next.Status = status
	next.DietaryRestrictions = strings.TrimSpace(in.DietaryRestrictions)

	m.mu.RLock()
	next = m.guests.withPrimary(next)
	plusOnes := m.guests.dependents(id)
	m.mu.RUnlock()

	updated, err := m.store.UpdateGuest(ctx, profileID, id, model.GuestPatch{
		Name:                &next.Name,
		TableID:             &next.TableID,
		Status:              &next.Status,
		DietaryRestrictions: &next.DietaryRestrictions,
	})
	if err != nil {
		return nil, m.fail("update_guest", fmt.Errorf("planner: updating guest: %w", err))
	}
	m.applyGuest(mirror.Update, *updated)

	for _, depID := range plusOnes {
		dep, err := m.store.UpdateGuest(ctx, profileID, depID, model.GuestPatch{
			TableID: &updated.TableID,
			Status:  &updated.Status,
		})
		if err != nil {
			m.logger.Warn("plus one not updated",
				slog.String("guest_id", depID),
				slog.String("primary_guest_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.applyGuest(mirror.Update, *dep)
	}

	out := *updated
	return &out, nil
}

// DeleteGuest removes a guest. Deleting a primary removes its plus-ones
// first; a plus-one that cannot be deleted is logged and skipped.
func (m *Manager) DeleteGuest(ctx context.Context, id string) error {
	defer m.begin()()

	profileID := m.currentProfileID()
	if profileID == "" {
		return m.fail("delete_guest", apperror.Unauthorized(msgNoProfile))
	}
	g, ok := m.lookupGuest(id)
	if !ok {
		return m.fail("delete_guest", apperror.NotFoundMessage(msgGuestNotFound))
	}

	if !g.IsPlusOne {
		m.mu.RLock()
		plusOnes := m.guests.dependents(id)
		m.mu.RUnlock()

		for _, depID := range plusOnes {
			if err := m.store.DeleteGuest(ctx, profileID, depID); err != nil {
				m.logger.Warn("plus one not deleted",
					slog.String("guest_id", depID),
					slog.String("primary_guest_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			m.applyGuest(mirror.Delete, model.Guest{ID: depID})
		}
	}

	if err := m.store.DeleteGuest(ctx, profileID, id); err != nil {
		return m.fail("delete_guest", fmt.Errorf("planner: deleting guest: %w", err))
	}
	m.applyGuest(mirror.Delete, g)
	return nil
}
