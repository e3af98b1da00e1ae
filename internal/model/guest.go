package model

import "time"

// GuestStatus is the RSVP state of a guest.
type GuestStatus string

const (
	StatusPending   GuestStatus = "pending"
	StatusConfirmed GuestStatus = "confirmed"
	StatusDeclined  GuestStatus = "declined"
)

// Valid reports whether s is one of the known statuses.
func (s GuestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDeclined:
		return true
	}
	return false
}

// Guest is one invitee.
//
// TableID is empty when the guest is unassigned. PrimaryGuestID is set
// exactly when IsPlusOne is true; a plus-one always sits at its primary's
// table with its primary's status.
type Guest struct {
	ID                  string      `json:"id"`
	ProfileID           string      `json:"profileId"`
	Name                string      `json:"name"`
	TableID             string      `json:"tableId"`
	Status              GuestStatus `json:"status"`
	DietaryRestrictions string      `json:"dietaryRestrictions"`
	IsPlusOne           bool        `json:"isPlusOne"`
	PrimaryGuestID      string      `json:"primaryGuestId"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// GuestInput is the form data for adding or editing a guest.
//
// TableID accepts "" or the literal "Unassigned" for no table. Status
// defaults to pending when empty. PlusOneName is only read on add.
type GuestInput struct {
	Name                string      `json:"name"`
	TableID             string      `json:"tableId"`
	Status              GuestStatus `json:"status"`
	DietaryRestrictions string      `json:"dietaryRestrictions"`
	PlusOneName         string      `json:"plusOneName"`
}

// GuestWithTable is a guest annotated with its table's display name.
type GuestWithTable struct {
	Guest
	TableName string `json:"tableName"`
}

// GuestPatch is a partial guest update. A nil field is left unchanged.
type GuestPatch struct {
	Name                *string
	TableID             *string
	Status              *GuestStatus
	DietaryRestrictions *string
}

// ApplyTo copies every set field of p onto g.
func (p GuestPatch) ApplyTo(g *Guest) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.TableID != nil {
		g.TableID = *p.TableID
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.DietaryRestrictions != nil {
		g.DietaryRestrictions = *p.DietaryRestrictions
	}
}
