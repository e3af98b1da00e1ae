// Package session is the Session Manager: who is signed in, their profile,
// and the sign-up / sign-in / sign-out / password operations.
//
// The Manager listens to its AuthClient's auth-state events for its whole
// lifetime. A sign-in loads the profile and then the guest and table data;
// a sign-out drops the profile and resets that data.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/service"
)

const (
	msgNoUser            = "No authenticated user"
	msgIncorrectPassword = "Current password is incorrect"
)

// AuthClient is the identity service as seen from one browser session.
// *service.AuthClient implements it.
type AuthClient interface {
	SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*model.AuthResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.AuthResult, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*model.AuthResult, error)
	Reauthenticate(ctx context.Context, password string) error
	UpdatePassword(ctx context.Context, password string) error
	OnAuthStateChange(fn service.AuthListener) (unsubscribe func())
}

// ProfileStore reads and writes profiles by owning user.
// *service.DataService implements it.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.Profile, error)
}

// DataLifecycle is the part of the Guest/Table Manager the session drives.
// *planner.Manager implements it.
type DataLifecycle interface {
	InitializeData(ctx context.Context) error
	ResetStore()
}

// Manager holds one browser session's identity and profile.
type Manager struct {
	client   AuthClient
	profiles ProfileStore
	logger   *slog.Logger

	mu          sync.RWMutex
	user        *model.User
	profile     *model.Profile
	session     *model.Session
	loading     int
	lastErr     string
	data        DataLifecycle
	unsubscribe func()
}

// New creates a signed-out Manager. Call Initialize before use.
func New(client AuthClient, profiles ProfileStore, logger *slog.Logger) *Manager {
	return &Manager{
		client:   client,
		profiles: profiles,
		logger:   logger,
	}
}

// ===== STATE =====

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Profile returns a copy of the current profile, or nil.
func (m *Manager) Profile() *model.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading > 0
}

// Err returns the message of the last failed operation, or "".
func (m *Manager) Err() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// ===== HELPERS =====

func (m *Manager) begin() (end func()) {
	m.mu.Lock()
	m.loading++
	m.lastErr = ""
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.loading--
		m.mu.Unlock()
	}
}

func (m *Manager) fail(op string, err error) error {
	m.mu.Lock()
	m.lastErr = apperror.Message(err)
	m.mu.Unlock()

	m.logger.Warn("session operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return err
}

func (m *Manager) setAuth(result *model.AuthResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		m.user, m.session = nil, nil
		return
	}
	m.user, m.session = result.User, result.Session
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.user, m.profile, m.session = nil, nil, nil
	m.mu.Unlock()
}

func (m *Manager) dataLifecycle() DataLifecycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// ===== LIFECYCLE =====

// Initialize restores the session the AuthClient already holds, if any, and
// starts following auth-state events. data is initialized on every sign-in
// and reset on every sign-out. Calling Initialize again only refreshes the
// session.
func (m *Manager) Initialize(ctx context.Context, data DataLifecycle) error {
	m.mu.Lock()
	m.data = data
	subscribed := m.unsubscribe != nil
	m.mu.Unlock()

	if !subscribed {
		unsubscribe := m.client.OnAuthStateChange(m.handleAuthEvent)
		m.mu.Lock()
		m.unsubscribe = unsubscribe
		m.mu.Unlock()
	}

	result, err := m.client.GetSession(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			return nil
		}
		return m.fail("initialize", fmt.Errorf("session: restoring session: %w", err))
	}
	m.setAuth(result)

	if err := m.FetchProfile(ctx); err != nil {
		return err
	}
	return nil
}

// Close stops following auth-state events.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Manager) handleAuthEvent(ctx context.Context, ev model.AuthEvent) {
	switch ev.Type {
	case model.SignedIn:
		m.setAuth(&model.AuthResult{User: ev.User, Session: ev.Session})
		if err := m.FetchProfile(ctx); err != nil {
			return
		}
		if data := m.dataLifecycle(); data != nil {
			if err := data.InitializeData(ctx); err != nil {
				m.logger.Error("loading guest data after sign-in failed", slog.String("error", err.Error()))
			}
		}
	case model.SignedOut:
		m.clear()
		if data := m.dataLifecycle(); data != nil {
			data.ResetStore()
		}
	}
}

// ===== OPERATIONS =====

// SignUp creates an account. The name and wedding fields become the new
// profile's initial values.
func (m *Manager) SignUp(ctx context.Context, email, password, fullName, weddingName, weddingDate string) (*model.User, error) {
	defer m.begin()()

	result, err := m.client.SignUp(ctx, strings.TrimSpace(email), password, model.UserMetadata{
		FullName:    fullName,
		WeddingName: weddingName,
		WeddingDate: weddingDate,
	})
	if err != nil {
		return nil, m.fail("sign_up", err)
	}
	m.setAuth(result)

	u := *result.User
	return &u, nil
}

// SignIn signs in with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	defer m.begin()()

	result, err := m.client.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, m.fail("sign_in", err)
	}
	m.setAuth(result)

	u := *result.User
	return &u, nil
}

// SignOut ends the session. Local state is cleared and the guest data reset
// whatever the identity service answers, so the manager never claims a
// session the server may already have dropped. A remote failure is still
// returned.
func (m *Manager) SignOut(ctx context.Context) error {
	defer m.begin()()

	remoteErr := m.client.SignOut(ctx)

	m.clear()
	if data := m.dataLifecycle(); data != nil {
		data.ResetStore()
	}

	if remoteErr != nil {
		return m.fail("sign_out", fmt.Errorf("session: signing out: %w", remoteErr))
	}
	return nil
}

// UpdatePassword changes the password after checking the current one. A
// wrong current password fails with "Current password is incorrect" and
// nothing is changed.
func (m *Manager) UpdatePassword(ctx context.Context, current, next string) error {
	defer m.begin()()

	if !m.IsAuthenticated() {
		return m.fail("update_password", apperror.Unauthorized(msgNoUser))
	}
	if err := m.client.Reauthenticate(ctx, current); err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			return m.fail("update_password", apperror.ValidationFailed("currentPassword", msgIncorrectPassword))
		}
		return m.fail("update_password", err)
	}
	if err := m.client.UpdatePassword(ctx, next); err != nil {
		return m.fail("update_password", err)
	}
	return nil
}

// FetchProfile loads the signed-in user's profile. Without a user it does
// nothing.
func (m *Manager) FetchProfile(ctx context.Context) error {
	u := m.User()
	if u == nil {
		return nil
	}

	p, err := m.profiles.GetProfile(ctx, u.ID)
	if err != nil {
		return m.fail("fetch_profile", err)
	}

	m.mu.Lock()
	m.profile = p
	m.mu.Unlock()
	return nil
}

// UpdateProfile writes patch to the signed-in user's profile and keeps the
// stored result.
func (m *Manager) UpdateProfile(ctx context.Context, patch model.ProfilePatch) (*model.Profile, error) {
	defer m.begin()()

	u := m.User()
	if u == nil {
		return nil, m.fail("update_profile", apperror.Unauthorized(msgNoUser))
	}

	p, err := m.profiles.UpdateProfile(ctx, u.ID, patch)
	if err != nil {
		return nil, m.fail("update_profile", err)
	}

	m.mu.Lock()
	m.profile = p
	m.mu.Unlock()

	out := *p
	return &out, nil
}
