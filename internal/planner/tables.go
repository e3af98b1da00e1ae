package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/mirror"
	"github.com/sakif/wedchart/internal/model"
)

const (
	msgTableNameRequired = "Table name is required"
	msgTableExists       = "A table with this name already exists"
	msgTableInUse        = "Cannot delete table with assigned guests. Please reassign guests first."
)

func (m *Manager) findTableByName(name string) (model.Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		found model.Table
		ok    bool
	)
	m.tables.Each(func(t model.Table) bool {
		if sameName(t.Name, name) {
			found, ok = t, true
			return false
		}
		return true
	})
	return found, ok
}

func (m *Manager) applyTable(op mirror.Op, t model.Table) {
	m.mu.Lock()
	m.tables.Apply(mirror.Event[model.Table]{Op: op, Source: mirror.Local, Item: t})
	m.mu.Unlock()
}

// AddTable creates a table. Names are unique per profile regardless of
// case; a zero capacity means model.DefaultTableCapacity.
func (m *Manager) AddTable(ctx context.Context, in model.TableInput) (*model.Table, error) {
	defer m.begin()()

	profileID := m.currentProfileID()
	if profileID == "" {
		return nil, m.fail("add_table", apperror.Unauthorized(msgNoProfile))
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, m.fail("add_table", apperror.ValidationFailed("name", msgTableNameRequired))
	}
	if _, exists := m.findTableByName(name); exists {
		return nil, m.fail("add_table", apperror.ValidationFailed("name", msgTableExists))
	}
	if in.Capacity < 0 {
		return nil, m.fail("add_table", apperror.ValidationFailed("capacity", "Capacity must be a positive number"))
	}

	t, err := m.createTable(ctx, &model.Table{
		ProfileID:   profileID,
		Name:        name,
		Capacity:    in.Capacity,
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		return nil, m.fail("add_table", err)
	}
	out := *t
	return &out, nil
}

func (m *Manager) createTable(ctx context.Context, t *model.Table) (*model.Table, error) {
	if t.Capacity == 0 {
		t.Capacity = model.DefaultTableCapacity
	}
	created, err := m.store.CreateTable(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("planner: adding table: %w", err)
	}
	m.applyTable(mirror.Insert, *created)
	return created, nil
}

// DeleteTable deletes a table nobody is seated at. While any mirrored
// guest references it, it fails with an ErrConflict error and nothing is
// written.
func (m *Manager) DeleteTable(ctx context.Context, id string) error {
	defer m.begin()()

	profileID := m.currentProfileID()
	if profileID == "" {
		return m.fail("delete_table", apperror.Unauthorized(msgNoProfile))
	}

	m.mu.RLock()
	seated := false
	m.guests.rows.Each(func(g model.Guest) bool {
		seated = g.TableID == id
		return !seated
	})
	m.mu.RUnlock()
	if seated {
		return m.fail("delete_table", apperror.Conflict(msgTableInUse))
	}

	if err := m.store.DeleteTable(ctx, profileID, id); err != nil {
		return m.fail("delete_table", fmt.Errorf("planner: deleting table: %w", err))
	}
	m.applyTable(mirror.Delete, model.Table{ID: id})
	return nil
}
