package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
)

// AuthListener receives auth-state transitions.
type AuthListener func(ctx context.Context, ev model.AuthEvent)

// AuthClient is one browser session's handle on the IdentityService. It
// remembers the current session and tells its listeners when someone signs
// in or out through it.
//
// Listeners run synchronously on the caller's goroutine, after the client's
// own lock is released, so a listener may call back into the client.
type AuthClient struct {
	identity *IdentityService
	logger   *slog.Logger

	mu        sync.RWMutex
	current   *model.AuthResult
	listeners map[int]AuthListener
	nextID    int
}

// NewAuthClient creates a signed-out client.
func NewAuthClient(identity *IdentityService, logger *slog.Logger) *AuthClient {
	return &AuthClient{
		identity:  identity,
		logger:    logger,
		listeners: make(map[int]AuthListener),
	}
}

// Restore seeds the client with a session recovered from a cookie. No event
// is emitted.
func (c *AuthClient) Restore(result *model.AuthResult) {
	c.mu.Lock()
	c.current = result
	c.mu.Unlock()
}

// Token returns the current session token, or "" when signed out.
func (c *AuthClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil || c.current.Session == nil {
		return ""
	}
	return c.current.Session.Token
}

// OnAuthStateChange registers fn and returns a func that unregisters it.
func (c *AuthClient) OnAuthStateChange(fn AuthListener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// SignUp registers an account and signs it in.
func (c *AuthClient) SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*model.AuthResult, error) {
	result, err := c.identity.SignUp(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}
	c.setCurrent(result)
	c.emit(ctx, model.AuthEvent{Type: model.SignedIn, User: result.User, Session: result.Session})
	return result, nil
}

// SignInWithPassword signs in with email and password.
func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*model.AuthResult, error) {
	result, err := c.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.setCurrent(result)
	c.emit(ctx, model.AuthEvent{Type: model.SignedIn, User: result.User, Session: result.Session})
	return result, nil
}

// SignOut revokes the current session. The client forgets the session
// either way; SIGNED_OUT is emitted only when the revoke succeeded.
func (c *AuthClient) SignOut(ctx context.Context) error {
	token := c.Token()
	c.setCurrent(nil)
	if token == "" {
		return nil
	}

	if err := c.identity.SignOut(ctx, token); err != nil {
		return err
	}
	c.emit(ctx, model.AuthEvent{Type: model.SignedOut})
	return nil
}

// GetSession re-reads the current session from the identity service.
func (c *AuthClient) GetSession(ctx context.Context) (*model.AuthResult, error) {
	token := c.Token()
	if token == "" {
		return nil, apperror.Unauthorized(msgNoUser)
	}
	result, err := c.identity.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	c.setCurrent(result)
	return result, nil
}

// Reauthenticate checks password against the signed-in user.
func (c *AuthClient) Reauthenticate(ctx context.Context, password string) error {
	userID, err := c.userID()
	if err != nil {
		return err
	}
	return c.identity.VerifyPassword(ctx, userID, password)
}

// UpdatePassword sets a new password for the signed-in user.
func (c *AuthClient) UpdatePassword(ctx context.Context, password string) error {
	userID, err := c.userID()
	if err != nil {
		return err
	}
	if err := c.identity.UpdatePassword(ctx, userID, password); err != nil {
		return fmt.Errorf("service/authclient: %w", err)
	}
	return nil
}

func (c *AuthClient) userID() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil || c.current.User == nil {
		return "", apperror.Unauthorized(msgNoUser)
	}
	return c.current.User.ID, nil
}

func (c *AuthClient) setCurrent(result *model.AuthResult) {
	c.mu.Lock()
	c.current = result
	c.mu.Unlock()
}

func (c *AuthClient) emit(ctx context.Context, ev model.AuthEvent) {
	c.mu.RLock()
	fns := make([]AuthListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	c.logger.Debug("auth state change", slog.String("event", string(ev.Type)), slog.Int("listeners", len(fns)))
	for _, fn := range fns {
		fn(ctx, ev)
	}
}
