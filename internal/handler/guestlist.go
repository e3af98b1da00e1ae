package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/wedchart/internal/model"
	"github.com/sakif/wedchart/internal/planner"
)

// GuestListHandler serves the shareable, read-only guest list: link
// generation and publishing for the organizer, and the public read for
// anyone holding the link.
type GuestListHandler struct {
	store  planner.Store
	logger *slog.Logger
}

func NewGuestListHandler(store planner.Store, logger *slog.Logger) *GuestListHandler {
	return &GuestListHandler{store: store, logger: logger}
}

// LinkResponse carries the public URL of the guest list.
type LinkResponse struct {
	URL string `json:"url"`
}

// PublicGuestListResponse is a published snapshot without the owning
// profile.
type PublicGuestListResponse struct {
	UniqueID    string              `json:"uniqueId"`
	WeddingName string              `json:"weddingName"`
	WeddingDate string              `json:"weddingDate"`
	GuestData   []model.PublicGuest `json:"guestData"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// HandleLink returns the public URL, assigning the list id on first use.
//
// HTTP: POST /api/guest-list/link
func (h *GuestListHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	url, err := ws.Planner.GenerateGuestListLink(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{URL: url})
}

// HandlePublish snapshots the confirmed, seated guests.
//
// HTTP: POST /api/guest-list/publish
func (h *GuestListHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	result, err := ws.Planner.GenerateComprehensiveGuestList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("guest list published",
		slog.String("unique_id", result.UniqueID),
		slog.Int("guests", result.GuestCount),
	)
	writeJSON(w, http.StatusOK, result)
}

// HandleConfirmed previews what a publish would contain.
//
// HTTP: GET /api/guest-list/confirmed
func (h *GuestListHandler) HandleConfirmed(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Planner.ConfirmedGuestsWithTables())
}

// HandlePublic returns a published snapshot. No sign-in is needed.
//
// HTTP: GET /api/public/guest-lists/{uniqueId}
func (h *GuestListHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	list, err := planner.GetPublicGuestList(r.Context(), h.store, chi.URLParam(r, "uniqueId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PublicGuestListResponse{
		UniqueID:    list.UniqueID,
		WeddingName: list.WeddingName,
		WeddingDate: list.WeddingDate,
		GuestData:   list.GuestData,
		UpdatedAt:   list.UpdatedAt,
	})
}
