package planner

import (
	"log/slog"

	"github.com/sakif/wedchart/internal/mirror"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/realtime"
)

// subscribe opens the realtime subscription for profileID unless one is
// already held.
func (m *Manager) subscribe(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		return
	}

	sub := m.feed.Subscribe(profileID, model.RelationGuests, model.RelationTables)
	done := make(chan struct{})
	m.sub, m.subDone = sub, done

	go func() {
		defer close(done)
		for c := range sub.Changes() {
			m.applyFrom(sub, c)
		}
	}()
}

// applyFrom applies c unless sub has been replaced or closed meanwhile.
func (m *Manager) applyFrom(sub *realtime.Subscription, c model.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != sub {
		return
	}
	m.applyChangeLocked(c)
}

// ApplyChange merges a remote change notification into the mirror by id.
// An INSERT for an id already present is ignored, so a duplicate delivery
// or the echo of a local insert changes nothing. It reports whether the
// mirror changed.
func (m *Manager) ApplyChange(c model.Change) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyChangeLocked(c)
}

func (m *Manager) applyChangeLocked(c model.Change) bool {
	if m.loadedFor != "" && c.ProfileID != m.loadedFor {
		return false
	}

	op, ok := changeOp(c.Type)
	if !ok {
		return false
	}
	row := c.New
	if op == mirror.Delete {
		row = c.Old
	}

	var changed bool
	switch c.Relation {
	case model.RelationGuests:
		g, ok := asGuest(row)
		if !ok {
			return false
		}
		changed = m.guests.apply(mirror.Event[model.Guest]{Op: op, Source: mirror.Remote, Item: g})
	case model.RelationTables:
		t, ok := asTable(row)
		if !ok {
			return false
		}
		changed = m.tables.Apply(mirror.Event[model.Table]{Op: op, Source: mirror.Remote, Item: t})
	default:
		return false
	}

	m.logger.Debug("realtime change",
		slog.String("relation", string(c.Relation)),
		slog.String("type", string(c.Type)),
		slog.Bool("applied", changed),
	)
	return changed
}

func changeOp(t model.ChangeType) (mirror.Op, bool) {
	switch t {
	case model.ChangeInsert:
		return mirror.Insert, true
	case model.ChangeUpdate:
		return mirror.Update, true
	case model.ChangeDelete:
		return mirror.Delete, true
	}
	return 0, false
}

func asGuest(v any) (model.Guest, bool) {
	switch g := v.(type) {
	case model.Guest:
		return g, true
	case *model.Guest:
		if g != nil {
			return *g, true
		}
	}
	return model.Guest{}, false
}

func asTable(v any) (model.Table, bool) {
	switch t := v.(type) {
	case model.Table:
		return t, true
	case *model.Table:
		if t != nil {
			return *t, true
		}
	}
	return model.Table{}, false
}
