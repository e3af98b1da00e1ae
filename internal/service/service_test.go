package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/auth"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// recordingPublisher keeps every change it is handed, in order.
type recordingPublisher struct {
	mu      sync.Mutex
	changes []model.Change
}

func (p *recordingPublisher) Publish(c model.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
}

func (p *recordingPublisher) all() []model.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Change(nil), p.changes...)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore opens an in-memory database with the schema applied. The
// services are thin over storage, so they are tested against the real one.
func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestIdentity(t *testing.T, db *sqlite.DB) *IdentityService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16")
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return NewIdentityService(db, auth.NewPasswordServiceForTest(bcrypt.MinCost), tokens, time.Hour, nil, newTestLogger())
}

func signUp(t *testing.T, s *IdentityService, email string) *model.AuthResult {
	t.Helper()
	result, err := s.SignUp(context.Background(), email, "secret-pw", model.UserMetadata{
		FullName:    "Jane Doe",
		WeddingName: "Jane & John",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	return result
}

// =========================================================================
// IDENTITY
// =========================================================================

func TestSignUp_CreatesProfileFromMetadata(t *testing.T) {
	db := newTestStore(t)
	s := newTestIdentity(t, db)

	result := signUp(t, s, "jane@example.com")

	if result.Session == nil || result.Session.Token == "" {
		t.Fatal("SignUp() returned no session token")
	}
	profile, err := db.GetProfileByUserID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetProfileByUserID() error = %v", err)
	}
	if profile.FullName != "Jane Doe" || profile.WeddingName != "Jane & John" {
		t.Errorf("profile = %+v, want metadata copied", profile)
	}
	if !profile.EmailNotifications {
		t.Error("EmailNotifications = false, want true by default")
	}
}

func TestSignUp_Validation(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing email", "  ", "secret-pw"},
		{"short password", "a@example.com", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SignUp(ctx, tt.email, tt.password, model.UserMetadata{FullName: "A"})
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("SignUp() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	signUp(t, s, "jane@example.com")

	_, err := s.SignUp(context.Background(), "JANE@example.com", "secret-pw", model.UserMetadata{FullName: "Other"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("SignUp() error = %v, want ErrConflict", err)
	}
	if got := apperror.Message(err); got != "User already registered" {
		t.Errorf("message = %q", got)
	}
}

func TestSignIn(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	signUp(t, s, "jane@example.com")
	ctx := context.Background()

	result, err := s.SignIn(ctx, "jane@example.com", "secret-pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if _, err := s.ValidateToken(ctx, result.Session.Token); err != nil {
		t.Errorf("ValidateToken() error = %v", err)
	}

	for _, tc := range []struct{ email, password string }{
		{"jane@example.com", "wrong-pw"},
		{"nobody@example.com", "secret-pw"},
	} {
		_, err := s.SignIn(ctx, tc.email, tc.password)
		if !errors.Is(err, apperror.ErrUnauthorized) {
			t.Errorf("SignIn(%q) error = %v, want ErrUnauthorized", tc.email, err)
		}
		if got := apperror.Message(err); got != "Invalid login credentials" {
			t.Errorf("SignIn(%q) message = %q", tc.email, got)
		}
	}
}

func TestSignOut_RevokesSession(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	result := signUp(t, s, "jane@example.com")
	ctx := context.Background()
	token := result.Session.Token

	if err := s.SignOut(ctx, token); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, err := s.ValidateToken(ctx, token); err == nil {
		t.Error("ValidateToken() after sign-out succeeded, want error")
	}
	if _, err := s.GetSession(ctx, token); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("GetSession() error = %v, want ErrUnauthorized", err)
	}
	// Signing out twice is harmless.
	if err := s.SignOut(ctx, token); err != nil {
		t.Errorf("second SignOut() error = %v", err)
	}
}

func TestValidateToken_ExpiredSession(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	result := signUp(t, s, "jane@example.com")

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.ValidateToken(context.Background(), result.Session.Token); err == nil {
		t.Error("ValidateToken() succeeded past session expiry")
	}
}

func TestGetSession(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	result := signUp(t, s, "jane@example.com")

	got, err := s.GetSession(context.Background(), result.Session.Token)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.User.Email != "jane@example.com" {
		t.Errorf("User.Email = %q", got.User.Email)
	}
	if got.Session.Token != result.Session.Token {
		t.Error("GetSession() did not carry the token")
	}
}

func TestUpdatePassword(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	result := signUp(t, s, "jane@example.com")
	ctx := context.Background()
	userID := result.User.ID

	if err := s.VerifyPassword(ctx, userID, "wrong"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("VerifyPassword(wrong) error = %v, want ErrUnauthorized", err)
	}
	if err := s.UpdatePassword(ctx, userID, "abc"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpdatePassword(short) error = %v, want ErrValidation", err)
	}
	if err := s.UpdatePassword(ctx, userID, "new-secret"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if _, err := s.SignIn(ctx, "jane@example.com", "new-secret"); err != nil {
		t.Errorf("SignIn(new password) error = %v", err)
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	signUp(t, s, "jane@example.com")

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err := s.PurgeExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpiredSessions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
}

// =========================================================================
// AUTH CLIENT
// =========================================================================

func TestAuthClient_EmitsEvents(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	client := NewAuthClient(s, newTestLogger())
	ctx := context.Background()

	var events []model.AuthEventType
	unsubscribe := client.OnAuthStateChange(func(_ context.Context, ev model.AuthEvent) {
		events = append(events, ev.Type)
	})

	if _, err := client.SignUp(ctx, "jane@example.com", "secret-pw", model.UserMetadata{FullName: "Jane"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if client.Token() == "" {
		t.Error("Token() empty after sign-up")
	}
	if err := client.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if client.Token() != "" {
		t.Error("Token() not cleared after sign-out")
	}

	unsubscribe()
	unsubscribe()
	if _, err := client.SignInWithPassword(ctx, "jane@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}

	want := []model.AuthEventType{model.SignedIn, model.SignedOut}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestAuthClient_FailedSignInEmitsNothing(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	client := NewAuthClient(s, newTestLogger())

	called := false
	client.OnAuthStateChange(func(context.Context, model.AuthEvent) { called = true })

	if _, err := client.SignInWithPassword(context.Background(), "x@example.com", "secret-pw"); err == nil {
		t.Fatal("SignInWithPassword() succeeded for unknown account")
	}
	if called {
		t.Error("listener called for a failed sign-in")
	}
}

func TestAuthClient_RestoreAndReauthenticate(t *testing.T) {
	s := newTestIdentity(t, newTestStore(t))
	result := signUp(t, s, "jane@example.com")
	ctx := context.Background()

	client := NewAuthClient(s, newTestLogger())
	if err := client.Reauthenticate(ctx, "secret-pw"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Reauthenticate() signed out error = %v, want ErrUnauthorized", err)
	}

	client.Restore(result)
	if _, err := client.GetSession(ctx); err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if err := client.Reauthenticate(ctx, "secret-pw"); err != nil {
		t.Errorf("Reauthenticate() error = %v", err)
	}
	if err := client.UpdatePassword(ctx, "another-pw"); err != nil {
		t.Errorf("UpdatePassword() error = %v", err)
	}
}

// =========================================================================
// DATA
// =========================================================================

func newTestData(t *testing.T) (*DataService, *recordingPublisher, *model.Profile) {
	t.Helper()
	db := newTestStore(t)
	result := signUp(t, newTestIdentity(t, db), "jane@example.com")
	profile, err := db.GetProfileByUserID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetProfileByUserID() error = %v", err)
	}
	pub := &recordingPublisher{}
	return NewDataService(db, pub, nil, newTestLogger()), pub, profile
}

func TestDataService_GuestWritesPublishChanges(t *testing.T) {
	s, pub, profile := newTestData(t)
	ctx := context.Background()

	g, err := s.CreateGuest(ctx, &model.Guest{ProfileID: profile.ID, Name: "Alice"})
	if err != nil {
		t.Fatalf("CreateGuest() error = %v", err)
	}
	if g.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", g.Status)
	}

	confirmed := model.StatusConfirmed
	updated, err := s.UpdateGuest(ctx, profile.ID, g.ID, model.GuestPatch{Status: &confirmed})
	if err != nil {
		t.Fatalf("UpdateGuest() error = %v", err)
	}
	if updated.Status != model.StatusConfirmed || updated.Name != "Alice" {
		t.Errorf("UpdateGuest() = %+v", updated)
	}

	if err := s.DeleteGuest(ctx, profile.ID, g.ID); err != nil {
		t.Fatalf("DeleteGuest() error = %v", err)
	}

	changes := pub.all()
	if len(changes) != 3 {
		t.Fatalf("published %d changes, want 3", len(changes))
	}
	wantTypes := []model.ChangeType{model.ChangeInsert, model.ChangeUpdate, model.ChangeDelete}
	for i, c := range changes {
		if c.Type != wantTypes[i] || c.Relation != model.RelationGuests || c.ProfileID != profile.ID {
			t.Errorf("change[%d] = %+v", i, c)
		}
	}
	if old, ok := changes[2].Old.(model.Guest); !ok || old.ID != g.ID {
		t.Errorf("delete Old = %#v, want guest id %s", changes[2].Old, g.ID)
	}
}

func TestDataService_GuestValidation(t *testing.T) {
	s, pub, profile := newTestData(t)
	ctx := context.Background()

	if _, err := s.CreateGuest(ctx, &model.Guest{ProfileID: profile.ID, Name: "A", Status: "maybe"}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("CreateGuest(bad status) error = %v, want ErrValidation", err)
	}
	if _, err := s.CreateGuest(ctx, &model.Guest{ProfileID: profile.ID, Name: "A", IsPlusOne: true}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("CreateGuest(plus one without primary) error = %v, want ErrValidation", err)
	}
	if _, err := s.CreateGuest(ctx, &model.Guest{Name: "A"}); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("CreateGuest(no profile) error = %v, want ErrUnauthorized", err)
	}
	if _, err := s.UpdateGuest(ctx, profile.ID, "missing", model.GuestPatch{}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateGuest(missing) error = %v, want ErrNotFound", err)
	}
	if n := len(pub.all()); n != 0 {
		t.Errorf("published %d changes for failed writes", n)
	}
}

func TestDataService_TablesDefaultCapacity(t *testing.T) {
	s, pub, profile := newTestData(t)
	ctx := context.Background()

	table, err := s.CreateTable(ctx, &model.Table{ProfileID: profile.ID, Name: "Rose"})
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if table.Capacity != model.DefaultTableCapacity {
		t.Errorf("Capacity = %d, want %d", table.Capacity, model.DefaultTableCapacity)
	}

	tables, err := s.ListTables(ctx, profile.ID)
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("ListTables() = %d tables, want 1", len(tables))
	}

	if err := s.DeleteTable(ctx, profile.ID, table.ID); err != nil {
		t.Fatalf("DeleteTable() error = %v", err)
	}
	if n := len(pub.all()); n != 2 {
		t.Errorf("published %d changes, want 2", n)
	}
}

func TestDataService_UpdateProfile(t *testing.T) {
	s, pub, profile := newTestData(t)
	ctx := context.Background()

	id := "abcdefABCDEF"
	got, err := s.UpdateProfile(ctx, profile.UserID, model.ProfilePatch{GuestListID: &id})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.GuestListID != id || got.FullName != profile.FullName {
		t.Errorf("UpdateProfile() = %+v", got)
	}

	// An empty patch is a read.
	if _, err := s.UpdateProfile(ctx, profile.UserID, model.ProfilePatch{}); err != nil {
		t.Fatalf("UpdateProfile(empty) error = %v", err)
	}
	changes := pub.all()
	if len(changes) != 1 || changes[0].Relation != model.RelationProfiles {
		t.Errorf("changes = %+v, want one profiles UPDATE", changes)
	}
}

func TestDataService_PublishGuestList(t *testing.T) {
	s, _, profile := newTestData(t)
	ctx := context.Background()

	list := &model.PublishedGuestList{
		UniqueID:    "abcdefABCDEF",
		ProfileID:   profile.ID,
		WeddingName: "Jane & John",
		GuestData:   []model.PublicGuest{{Name: "Alice", TableName: "Rose"}},
	}
	if _, err := s.PublishGuestList(ctx, list); err != nil {
		t.Fatalf("PublishGuestList() error = %v", err)
	}

	got, err := s.GetPublishedGuestList(ctx, "abcdefABCDEF")
	if err != nil {
		t.Fatalf("GetPublishedGuestList() error = %v", err)
	}
	if len(got.GuestData) != 1 || got.GuestData[0].TableName != "Rose" {
		t.Errorf("GuestData = %+v", got.GuestData)
	}

	if _, err := s.GetPublishedGuestList(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetPublishedGuestList(missing) error = %v, want ErrNotFound", err)
	}
}
