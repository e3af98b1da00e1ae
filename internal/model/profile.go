package model

import "time"

// Profile is the organizer's per-account record. It is created when the
// account is created, and never deleted.
//
// Optional text fields use the empty string for "not set"; the repository
// stores them as NULL.
type Profile struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	FullName           string    `json:"fullName"`
	WeddingName        string    `json:"weddingName"`
	WeddingDate        string    `json:"weddingDate"`
	GuestListID        string    `json:"guestListId"`
	EmailNotifications bool      `json:"emailNotifications"`
	MarketingEmails    bool      `json:"marketingEmails"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ProfilePatch is a partial update. A nil field is left unchanged.
type ProfilePatch struct {
	FullName           *string `json:"fullName,omitempty"`
	WeddingName        *string `json:"weddingName,omitempty"`
	WeddingDate        *string `json:"weddingDate,omitempty"`
	GuestListID        *string `json:"guestListId,omitempty"`
	EmailNotifications *bool   `json:"emailNotifications,omitempty"`
	MarketingEmails    *bool   `json:"marketingEmails,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.FullName == nil && p.WeddingName == nil && p.WeddingDate == nil &&
		p.GuestListID == nil && p.EmailNotifications == nil && p.MarketingEmails == nil
}

// ApplyTo copies every set field of p onto profile.
func (p ProfilePatch) ApplyTo(profile *Profile) {
	if p.FullName != nil {
		profile.FullName = *p.FullName
	}
	if p.WeddingName != nil {
		profile.WeddingName = *p.WeddingName
	}
	if p.WeddingDate != nil {
		profile.WeddingDate = *p.WeddingDate
	}
	if p.GuestListID != nil {
		profile.GuestListID = *p.GuestListID
	}
	if p.EmailNotifications != nil {
		profile.EmailNotifications = *p.EmailNotifications
	}
	if p.MarketingEmails != nil {
		profile.MarketingEmails = *p.MarketingEmails
	}
}
