package model

import "time"

// DefaultTableCapacity is used when a table is created without a capacity.
const DefaultTableCapacity = 8

// Table is a seating table.
type Table struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profileId"`
	Name        string    `json:"name"`
	Capacity    int       `json:"capacity"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableInput is the form data for creating a table. Capacity 0 means the
// default.
type TableInput struct {
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// TableOption is one entry of a table picker. Value is nil for "Unassigned".
type TableOption struct {
	Label string  `json:"label"`
	Value *string `json:"value"`
}
