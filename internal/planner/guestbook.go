package planner

import (
	"slices"

	"github.com/sakif/wedchart/internal/mirror"
	"github.com/sakif/wedchart/internal/model"
)

// guestBook is the guest mirror plus the primary → plus-ones relation.
// Every mutation goes through apply or replace, which keep the two in step.
type guestBook struct {
	rows     *mirror.Collection[model.Guest]
	plusOnes map[string][]string // primary id → plus-one ids, oldest first
}

func newGuestBook() *guestBook {
	return &guestBook{
		rows:     mirror.New(func(g model.Guest) string { return g.ID }),
		plusOnes: make(map[string][]string),
	}
}

func (b *guestBook) apply(ev mirror.Event[model.Guest]) bool {
	var before model.Guest
	if ev.Op != mirror.Insert {
		var ok bool
		if before, ok = b.rows.Get(ev.Item.ID); !ok {
			return false
		}
	}
	if !b.rows.Apply(ev) {
		return false
	}

	switch ev.Op {
	case mirror.Insert:
		b.link(ev.Item)
	case mirror.Update:
		if before.PrimaryGuestID != ev.Item.PrimaryGuestID {
			b.unlink(before)
			b.link(ev.Item)
		}
	case mirror.Delete:
		b.unlink(before)
		delete(b.plusOnes, before.ID)
	}
	return true
}

func (b *guestBook) replace(guests []model.Guest) {
	b.rows.Replace(guests)
	b.plusOnes = make(map[string][]string)
	// Rows arrive newest first; link oldest first.
	for i := len(guests) - 1; i >= 0; i-- {
		b.link(guests[i])
	}
}

func (b *guestBook) clear() {
	b.rows.Clear()
	b.plusOnes = make(map[string][]string)
}

// dependents returns the ids of the plus-ones of primaryID.
func (b *guestBook) dependents(primaryID string) []string {
	return slices.Clone(b.plusOnes[primaryID])
}

func (b *guestBook) link(g model.Guest) {
	if !g.IsPlusOne || g.PrimaryGuestID == "" {
		return
	}
	if !slices.Contains(b.plusOnes[g.PrimaryGuestID], g.ID) {
		b.plusOnes[g.PrimaryGuestID] = append(b.plusOnes[g.PrimaryGuestID], g.ID)
	}
}

func (b *guestBook) unlink(g model.Guest) {
	if g.PrimaryGuestID == "" {
		return
	}
	ids := slices.DeleteFunc(b.plusOnes[g.PrimaryGuestID], func(id string) bool { return id == g.ID })
	if len(ids) == 0 {
		delete(b.plusOnes, g.PrimaryGuestID)
		return
	}
	b.plusOnes[g.PrimaryGuestID] = ids
}

// withPrimary returns g with its table and status taken from its primary,
// when g is a plus-one whose primary is mirrored.
func (b *guestBook) withPrimary(g model.Guest) model.Guest {
	if !g.IsPlusOne {
		return g
	}
	if primary, ok := b.rows.Get(g.PrimaryGuestID); ok {
		g.TableID = primary.TableID
		g.Status = primary.Status
	}
	return g
}
