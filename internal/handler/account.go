package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
)

// AccountHandler serves the account settings page: password change and
// profile edits.
type AccountHandler struct {
	validate *Validator
	logger   *slog.Logger
}

func NewAccountHandler(validate *Validator, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{validate: validate, logger: logger}
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=NewPassword"`
}

// profileRequest lists the fields an organizer may edit. The guest-list id
// is assigned by the server and cannot be set here.
type profileRequest struct {
	FullName           *string `json:"fullName" validate:"omitempty,max=200"`
	WeddingName        *string `json:"weddingName" validate:"omitempty,max=200"`
	WeddingDate        *string `json:"weddingDate" validate:"omitempty,datetime=2006-01-02"`
	EmailNotifications *bool   `json:"emailNotifications"`
	MarketingEmails    *bool   `json:"marketingEmails"`
}

func (p profileRequest) patch() model.ProfilePatch {
	return model.ProfilePatch{
		FullName:           p.FullName,
		WeddingName:        p.WeddingName,
		WeddingDate:        p.WeddingDate,
		EmailNotifications: p.EmailNotifications,
		MarketingEmails:    p.MarketingEmails,
	}
}

// HandleUpdatePassword changes the password after checking the current one.
//
// HTTP: PUT /api/account/password
func (h *AccountHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := ws.Session.UpdatePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

// HandleGetProfile returns the caller's profile, loading it when the
// workspace has none yet.
//
// HTTP: GET /api/account/profile
func (h *AccountHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	if ws.Session.Profile() == nil {
		if err := ws.Session.FetchProfile(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	profile := ws.Session.Profile()
	if profile == nil {
		writeError(w, apperror.NotFoundMessage("No profile found"))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateProfile applies a partial profile update.
//
// HTTP: PATCH /api/account/profile
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	profile, err := ws.Session.UpdateProfile(r.Context(), req.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
