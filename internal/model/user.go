// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an identity record: an email/password account plus the metadata
// supplied at sign-up. The metadata seeds the user's Profile.
//
// PasswordHash never leaves the server; the json:"-" tag keeps it out of
// every response body.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Metadata     UserMetadata `json:"userMetadata"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// UserMetadata is the free-form data captured on the sign-up form.
type UserMetadata struct {
	FullName    string `json:"fullName"`
	WeddingName string `json:"weddingName,omitempty"`
	WeddingDate string `json:"weddingDate,omitempty"`
}

// Session is a signed-in period for one user. The ID doubles as the JWT "jti"
// claim, so revoking the row invalidates the token.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Token     string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the session can still authenticate requests at t.
func (s *Session) Active(t time.Time) bool {
	return s.RevokedAt == nil && t.Before(s.ExpiresAt)
}

// AuthResult is what a successful sign-up or sign-in hands back.
type AuthResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// AuthEventType names an auth-state transition.
type AuthEventType string

const (
	SignedIn  AuthEventType = "SIGNED_IN"
	SignedOut AuthEventType = "SIGNED_OUT"
)

// AuthEvent is delivered to auth-state listeners. User and Session are nil
// for SignedOut.
type AuthEvent struct {
	Type    AuthEventType
	User    *User
	Session *Session
}
