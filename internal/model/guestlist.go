package model

import "time"

// PublishedGuestList is the read-only snapshot shared by link. It is keyed by
// UniqueID and overwritten wholesale on every publish.
type PublishedGuestList struct {
	ID          string        `json:"id"`
	UniqueID    string        `json:"uniqueId"`
	ProfileID   string        `json:"profileId"`
	WeddingName string        `json:"weddingName"`
	WeddingDate string        `json:"weddingDate"`
	GuestData   []PublicGuest `json:"guestData"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// PublicGuest is the only guest data a published list exposes.
type PublicGuest struct {
	Name      string `json:"name"`
	TableName string `json:"tableName"`
}

// PublishResult describes a publish.
type PublishResult struct {
	UniqueID   string `json:"uniqueId"`
	URL        string `json:"url"`
	GuestCount int    `json:"guestCount"`
}

// CSVRow is one parsed line of an import file.
type CSVRow struct {
	GuestName string   `json:"guestName"`
	TableName string   `json:"tableName"`
	IsValid   bool     `json:"isValid"`
	Errors    []string `json:"errors"`
}

// ImportResult tallies a bulk import. A duplicate counts toward both
// Duplicates and Failed.
type ImportResult struct {
	Success    int      `json:"success"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
	Duplicates int      `json:"duplicates"`
}
