package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/auth"
	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/workspace"
)

// AuthHandler serves sign-up, sign-in and sign-out.
//
// Sign-up and sign-in open a fresh workspace, run the operation through its
// session manager, and on success register the workspace under the new
// session id and hand the token back in the session cookie.
type AuthHandler struct {
	registry     *workspace.Registry
	validate     *Validator
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(registry *workspace.Registry, validate *Validator, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		registry:     registry,
		validate:     validate,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	FullName    string `json:"fullName" validate:"required,max=200"`
	WeddingName string `json:"weddingName" validate:"max=200"`
	WeddingDate string `json:"weddingDate" validate:"omitempty,datetime=2006-01-02"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AccountResponse is the signed-in user with their profile.
type AccountResponse struct {
	User    *model.User    `json:"user"`
	Profile *model.Profile `json:"profile"`
}

// HandleSignUp creates an account and signs it in.
//
// HTTP: POST /auth/signup
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	ws, err := h.registry.Open(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := ws.Session.SignUp(r.Context(), req.Email, req.Password, req.FullName, req.WeddingName, req.WeddingDate)
	if err != nil {
		h.registry.Discard(ws)
		writeError(w, err)
		return
	}
	if !h.bind(w, ws) {
		return
	}

	h.logger.Info("account created", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, AccountResponse{User: user, Profile: ws.Session.Profile()})
}

// HandleSignIn signs in with email and password.
//
// HTTP: POST /auth/signin
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	ws, err := h.registry.Open(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := ws.Session.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.registry.Discard(ws)
		writeError(w, err)
		return
	}
	if !h.bind(w, ws) {
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{User: user, Profile: ws.Session.Profile()})
}

// bind registers ws and sets the session cookie. It writes the error
// response itself and reports false on failure.
func (h *AuthHandler) bind(w http.ResponseWriter, ws *workspace.Workspace) bool {
	sess := ws.Session.Session()
	if sess == nil || sess.Token == "" {
		h.registry.Discard(ws)
		writeError(w, apperror.Unauthorized("No authenticated user"))
		return false
	}
	if err := h.registry.Bind(ws); err != nil {
		h.registry.Discard(ws)
		writeError(w, err)
		return false
	}
	auth.SetSessionCookie(w, sess.Token, sess.ExpiresAt, h.cookieSecure)
	return true
}

// HandleSignOut ends the caller's session. The cookie is cleared and the
// workspace closed even when revoking the session fails.
//
// HTTP: POST /auth/signout
// Auth: Required
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	sessionID := ws.ID()

	err := ws.Session.SignOut(r.Context())
	h.registry.Close(sessionID)
	auth.ClearSessionCookie(w, h.cookieSecure)

	if err != nil {
		h.logger.Warn("sign out: revoking session failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Signed out"})
}

// HandleMe returns the signed-in user and their profile.
//
// HTTP: GET /api/account
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{User: ws.Session.User(), Profile: ws.Session.Profile()})
}

// workspaceFrom returns the workspace attached by workspace.Middleware, or
// writes a 401.
func workspaceFrom(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, ok := workspace.FromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("No authenticated user"))
		return nil, false
	}
	return ws, true
}
