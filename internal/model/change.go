package model

import "time"

// Relation names a table whose row changes are broadcast.
type Relation string

const (
	RelationGuests   Relation = "guests"
	RelationTables   Relation = "tables"
	RelationProfiles Relation = "profiles"
)

// ChangeType is the kind of row change.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one row-level change notification. New is set for INSERT and
// UPDATE, Old for DELETE (and for UPDATE when the previous row is known).
// Both hold a value (not a pointer) of the relation's model type: Guest,
// Table or Profile.
type Change struct {
	Relation        Relation   `json:"table"`
	Type            ChangeType `json:"eventType"`
	ProfileID       string     `json:"profileId"`
	New             any        `json:"new,omitempty"`
	Old             any        `json:"old,omitempty"`
	CommitTimestamp time.Time  `json:"commitTimestamp"`
}
