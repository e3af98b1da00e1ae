package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/service"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeAuthClient behaves like service.AuthClient over a single account
// with password "secret-pw".
type fakeAuthClient struct {
	current   *model.AuthResult
	listeners []service.AuthListener

	signOutErr     error
	passwordUpdate string
}

var testUser = &model.User{ID: "user-1", Email: "jane@example.com"}

func (f *fakeAuthClient) emit(ctx context.Context, ev model.AuthEvent) {
	for _, fn := range f.listeners {
		fn(ctx, ev)
	}
}

func (f *fakeAuthClient) signIn(ctx context.Context) *model.AuthResult {
	f.current = &model.AuthResult{User: testUser, Session: &model.Session{ID: "s1", UserID: testUser.ID}}
	f.emit(ctx, model.AuthEvent{Type: model.SignedIn, User: f.current.User, Session: f.current.Session})
	return f.current
}

func (f *fakeAuthClient) SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*model.AuthResult, error) {
	if email == testUser.Email {
		return nil, apperror.Conflict("User already registered")
	}
	return f.signIn(ctx), nil
}

func (f *fakeAuthClient) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthResult, error) {
	if email != testUser.Email || password != "secret-pw" {
		return nil, apperror.Unauthorized("Invalid login credentials")
	}
	return f.signIn(ctx), nil
}

func (f *fakeAuthClient) SignOut(ctx context.Context) error {
	f.current = nil
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.emit(ctx, model.AuthEvent{Type: model.SignedOut})
	return nil
}

func (f *fakeAuthClient) GetSession(context.Context) (*model.AuthResult, error) {
	if f.current == nil {
		return nil, apperror.Unauthorized("No authenticated user")
	}
	return f.current, nil
}

func (f *fakeAuthClient) Reauthenticate(_ context.Context, password string) error {
	if password != "secret-pw" {
		return apperror.Unauthorized("Invalid login credentials")
	}
	return nil
}

func (f *fakeAuthClient) UpdatePassword(_ context.Context, password string) error {
	f.passwordUpdate = password
	return nil
}

func (f *fakeAuthClient) OnAuthStateChange(fn service.AuthListener) func() {
	f.listeners = append(f.listeners, fn)
	n := len(f.listeners) - 1
	return func() { f.listeners[n] = func(context.Context, model.AuthEvent) {} }
}

// fakeProfiles stores one profile per user id.
type fakeProfiles struct {
	profiles map[string]*model.Profile
	getErr   error
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	c := *p
	return &c, nil
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, userID string, patch model.ProfilePatch) (*model.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	patch.ApplyTo(p)
	c := *p
	return &c, nil
}

// fakeData counts lifecycle calls.
type fakeData struct {
	inits, resets int
}

func (f *fakeData) InitializeData(context.Context) error { f.inits++; return nil }
func (f *fakeData) ResetStore()                          { f.resets++ }

func newTestManager(t *testing.T) (*Manager, *fakeAuthClient, *fakeData) {
	t.Helper()
	client := &fakeAuthClient{}
	profiles := &fakeProfiles{profiles: map[string]*model.Profile{
		testUser.ID: {ID: "profile-1", UserID: testUser.ID, FullName: "Jane Doe"},
	}}
	data := &fakeData{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	m := New(client, profiles, logger)
	if err := m.Initialize(context.Background(), data); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m, client, data
}

// =========================================================================
// TESTS
// =========================================================================

func TestInitialize_SignedOut(t *testing.T) {
	m, _, data := newTestManager(t)

	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true with no session")
	}
	if m.Profile() != nil {
		t.Error("Profile() non-nil with no session")
	}
	if data.inits != 0 {
		t.Errorf("InitializeData called %d times", data.inits)
	}
}

func TestInitialize_RestoresSession(t *testing.T) {
	client := &fakeAuthClient{current: &model.AuthResult{User: testUser, Session: &model.Session{ID: "s1"}}}
	profiles := &fakeProfiles{profiles: map[string]*model.Profile{
		testUser.ID: {ID: "profile-1", UserID: testUser.ID},
	}}
	m := New(client, profiles, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	if err := m.Initialize(context.Background(), &fakeData{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !m.IsAuthenticated() {
		t.Fatal("IsAuthenticated() = false after restoring a session")
	}
	if p := m.Profile(); p == nil || p.ID != "profile-1" {
		t.Errorf("Profile() = %+v, want profile-1", p)
	}
	if s := m.Session(); s == nil || s.ID != "s1" {
		t.Errorf("Session() = %+v, want s1", s)
	}
}

func TestSignIn_LoadsProfileAndData(t *testing.T) {
	m, _, data := newTestManager(t)

	u, err := m.SignIn(context.Background(), " jane@example.com ", "secret-pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if u.ID != testUser.ID {
		t.Errorf("SignIn() user = %s", u.ID)
	}
	if p := m.Profile(); p == nil || p.ID != "profile-1" {
		t.Errorf("Profile() = %+v after sign-in", p)
	}
	if data.inits != 1 {
		t.Errorf("InitializeData called %d times, want 1", data.inits)
	}
	if m.Loading() {
		t.Error("Loading() = true after SignIn returned")
	}
}

func TestSignIn_Failure(t *testing.T) {
	m, _, data := newTestManager(t)

	_, err := m.SignIn(context.Background(), "jane@example.com", "wrong")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("SignIn() error = %v, want ErrUnauthorized", err)
	}
	if got := m.Err(); got != "Invalid login credentials" {
		t.Errorf("Err() = %q", got)
	}
	if m.IsAuthenticated() || data.inits != 0 {
		t.Error("failed sign-in changed state")
	}
}

func TestSignUp(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.SignUp(ctx, "jane@example.com", "secret-pw", "Jane", "", ""); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("SignUp(existing) error = %v, want ErrConflict", err)
	}
	if _, err := m.SignUp(ctx, "new@example.com", "secret-pw", "Jane", "J & J", "2026-06-01"); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !m.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after sign-up")
	}
	if m.Err() != "" {
		t.Errorf("Err() = %q, want cleared by the successful call", m.Err())
	}
}

func TestSignOut_ClearsState(t *testing.T) {
	m, _, data := newTestManager(t)
	ctx := context.Background()
	if _, err := m.SignIn(ctx, "jane@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if m.IsAuthenticated() || m.Profile() != nil || m.Session() != nil {
		t.Error("state not cleared after sign-out")
	}
	if data.resets == 0 {
		t.Error("ResetStore not called on sign-out")
	}
}

func TestSignOut_RemoteFailureStillClears(t *testing.T) {
	m, client, data := newTestManager(t)
	ctx := context.Background()
	if _, err := m.SignIn(ctx, "jane@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	client.signOutErr = errors.New("network down")

	err := m.SignOut(ctx)
	if err == nil {
		t.Fatal("SignOut() error = nil, want the remote failure")
	}
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after a failed remote sign-out")
	}
	if data.resets != 1 {
		t.Errorf("ResetStore called %d times, want 1", data.resets)
	}
	if m.Err() == "" {
		t.Error("Err() empty after failed sign-out")
	}
}

func TestUpdatePassword(t *testing.T) {
	m, client, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.UpdatePassword(ctx, "secret-pw", "next-pw"); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("UpdatePassword() signed out error = %v, want ErrUnauthorized", err)
	}

	if _, err := m.SignIn(ctx, "jane@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	err := m.UpdatePassword(ctx, "wrong", "next-pw")
	if got := apperror.Message(err); got != "Current password is incorrect" {
		t.Errorf("UpdatePassword(wrong) message = %q", got)
	}
	if client.passwordUpdate != "" {
		t.Error("password changed despite failed verification")
	}

	if err := m.UpdatePassword(ctx, "secret-pw", "next-pw"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if client.passwordUpdate != "next-pw" {
		t.Errorf("password update = %q, want next-pw", client.passwordUpdate)
	}
}

func TestFetchProfile_NoUserIsNoop(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.FetchProfile(context.Background()); err != nil {
		t.Errorf("FetchProfile() error = %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	name := "Jane & John"

	if _, err := m.UpdateProfile(ctx, model.ProfilePatch{WeddingName: &name}); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("UpdateProfile() signed out error = %v, want ErrUnauthorized", err)
	}
	if got := m.Err(); got != "No authenticated user" {
		t.Errorf("Err() = %q", got)
	}

	if _, err := m.SignIn(ctx, "jane@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	p, err := m.UpdateProfile(ctx, model.ProfilePatch{WeddingName: &name})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if p.WeddingName != name || m.Profile().WeddingName != name {
		t.Errorf("WeddingName = %q / %q, want %q", p.WeddingName, m.Profile().WeddingName, name)
	}
}

func TestClose_StopsFollowingEvents(t *testing.T) {
	m, client, data := newTestManager(t)
	m.Close()

	client.signIn(context.Background())
	if m.IsAuthenticated() || data.inits != 0 {
		t.Error("event handled after Close")
	}
}
