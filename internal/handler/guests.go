package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/wedchart/internal/model"
)

// GuestHandler serves the guest list of the caller's workspace.
type GuestHandler struct {
	validate *Validator
	logger   *slog.Logger
}

func NewGuestHandler(validate *Validator, logger *slog.Logger) *GuestHandler {
	return &GuestHandler{validate: validate, logger: logger}
}

type guestRequest struct {
	Name                string            `json:"name" validate:"max=200"`
	TableID             string            `json:"tableId"`
	Status              model.GuestStatus `json:"status" validate:"omitempty,oneof=pending confirmed declined"`
	DietaryRestrictions string            `json:"dietaryRestrictions" validate:"max=500"`
	PlusOneName         string            `json:"plusOneName" validate:"max=200"`
}

func (g guestRequest) input() model.GuestInput {
	return model.GuestInput{
		Name:                g.Name,
		TableID:             g.TableID,
		Status:              g.Status,
		DietaryRestrictions: g.DietaryRestrictions,
		PlusOneName:         g.PlusOneName,
	}
}

// HandleList returns every guest with its table name.
//
// HTTP: GET /api/guests
func (h *GuestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Planner.GuestsWithTableNames())
}

// HandleCreate adds a guest, and a plus-one when plusOneName is set.
//
// HTTP: POST /api/guests
func (h *GuestHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	var req guestRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	guest, err := ws.Planner.AddGuest(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, guest)
}

// HandleUpdate edits a guest. Plus-ones follow their primary's table and
// status.
//
// HTTP: PUT /api/guests/{id}
func (h *GuestHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	var req guestRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	guest, err := ws.Planner.UpdateGuest(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

// HandleDelete removes a guest and its plus-ones.
//
// HTTP: DELETE /api/guests/{id}
func (h *GuestHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	if err := ws.Planner.DeleteGuest(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
