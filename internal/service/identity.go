package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/auth"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/repository"
)

const (
	msgInvalidCredentials = "Invalid login credentials"
	msgNoUser             = "No authenticated user"
)

// IdentityStore is the storage IdentityService needs.
type IdentityStore interface {
	repository.UserRepository
	repository.SessionRepository
	repository.ProfileRepository
}

// IdentityService owns accounts and sessions.
//
// Sign-up creates the account and its profile in one call, seeding the
// profile from the sign-up metadata. Every successful sign-in opens a new
// session row; the token handed out names that row, and sign-out revokes it.
type IdentityService struct {
	store     IdentityStore
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	ttl       time.Duration
	rec       Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewIdentityService creates an IdentityService issuing sessions that last
// ttl. rec may be nil.
func NewIdentityService(
	store IdentityStore,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	ttl time.Duration,
	rec Recorder,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		ttl:       ttl,
		rec:       recorderOrNop(rec),
		logger:    logger,
		now:       time.Now,
	}
}

// SignUp registers a new account, creates its profile and opens a session.
func (s *IdentityService) SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*model.AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}
	if len(password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password should be at least %d characters", auth.MinPasswordLength))
	}
	meta.FullName = strings.TrimSpace(meta.FullName)
	meta.WeddingName = strings.TrimSpace(meta.WeddingName)

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Metadata:     meta,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.rec.RecordAuth("signup", "failure")
		return nil, fmt.Errorf("service/identity: creating user: %w", err)
	}

	profile := &model.Profile{
		UserID:             user.ID,
		FullName:           meta.FullName,
		WeddingName:        meta.WeddingName,
		WeddingDate:        meta.WeddingDate,
		EmailNotifications: true,
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		s.rec.RecordAuth("signup", "failure")
		return nil, fmt.Errorf("service/identity: creating profile for user %s: %w", user.ID, err)
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.rec.RecordAuth("signup", "success")
	s.logger.Info("account created", slog.String("user_id", user.ID))
	return &model.AuthResult{User: user, Session: session}, nil
}

// SignIn checks credentials and opens a session. Unknown email and wrong
// password produce the same error.
func (s *IdentityService) SignIn(ctx context.Context, email, password string) (*model.AuthResult, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.rec.RecordAuth("signin", "failure")
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/identity: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.rec.RecordAuth("signin", "failure")
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/identity: verifying password: %w", err)
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.rec.RecordAuth("signin", "success")
	s.logger.Info("user signed in", slog.String("user_id", user.ID))
	return &model.AuthResult{User: user, Session: session}, nil
}

// SignOut revokes the session named by token. An already revoked or
// expired session is not an error.
func (s *IdentityService) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil
		}
		return apperror.Unauthorized(msgNoUser)
	}

	if err := s.store.RevokeSession(ctx, claims.SessionID, s.now()); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("service/identity: revoking session %s: %w", claims.SessionID, err)
	}

	s.rec.RecordAuth("signout", "success")
	s.logger.Info("user signed out", slog.String("user_id", claims.UserID))
	return nil
}

// ValidateToken checks the token's signature and that its session is still
// active. It implements auth.SessionValidator.
func (s *IdentityService) ValidateToken(ctx context.Context, token string) (auth.Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return auth.Claims{}, err
	}

	session, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("service/identity: loading session: %w", err)
	}
	if session.UserID != claims.UserID || !session.Active(s.now()) {
		return auth.Claims{}, apperror.Unauthorized("Session expired")
	}
	return claims, nil
}

// GetSession resolves a token to its user and session.
func (s *IdentityService) GetSession(ctx context.Context, token string) (*model.AuthResult, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, apperror.Unauthorized(msgNoUser)
	}

	session, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: loading session: %w", err)
	}
	session.Token = token

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: loading user %s: %w", claims.UserID, err)
	}
	return &model.AuthResult{User: user, Session: session}, nil
}

// VerifyPassword re-checks a signed-in user's password.
func (s *IdentityService) VerifyPassword(ctx context.Context, userID, password string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/identity: loading user %s: %w", userID, err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return apperror.Unauthorized(msgInvalidCredentials)
		}
		return fmt.Errorf("service/identity: verifying password: %w", err)
	}
	return nil
}

// UpdatePassword stores a new password for userID. It does not check the
// old one; callers re-authenticate first.
func (s *IdentityService) UpdatePassword(ctx context.Context, userID, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password should be at least %d characters", auth.MinPasswordLength))
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/identity: updating password: %w", err)
	}
	s.rec.RecordAuth("password_update", "success")
	s.logger.Info("password updated", slog.String("user_id", userID))
	return nil
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (s *IdentityService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/identity: purging sessions: %w", err)
	}
	return n, nil
}

func (s *IdentityService) openSession(ctx context.Context, userID string) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/identity: creating session: %w", err)
	}

	token, err := s.tokens.Issue(userID, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("service/identity: issuing token: %w", err)
	}
	session.Token = token
	return session, nil
}
