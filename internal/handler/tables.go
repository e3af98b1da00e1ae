package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/wedchart/internal/model"
)

// TableHandler serves the seating tables of the caller's workspace.
type TableHandler struct {
	validate *Validator
	logger   *slog.Logger
}

func NewTableHandler(validate *Validator, logger *slog.Logger) *TableHandler {
	return &TableHandler{validate: validate, logger: logger}
}

type tableRequest struct {
	Name        string `json:"name" validate:"max=200"`
	Capacity    int    `json:"capacity" validate:"gte=0,lte=1000"`
	Location    string `json:"location" validate:"max=200"`
	Description string `json:"description" validate:"max=500"`
}

// HandleList returns every table.
//
// HTTP: GET /api/tables
func (h *TableHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Planner.Tables())
}

// HandleOptions returns the table picker entries, "Unassigned" first.
//
// HTTP: GET /api/tables/options
func (h *TableHandler) HandleOptions(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Planner.TableOptions())
}

// HandleCreate adds a table.
//
// HTTP: POST /api/tables
func (h *TableHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	var req tableRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}

	table, err := ws.Planner.AddTable(r.Context(), model.TableInput{
		Name:        req.Name,
		Capacity:    req.Capacity,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, table)
}

// HandleDelete removes an empty table. A table that still seats guests is
// refused with 409.
//
// HTTP: DELETE /api/tables/{id}
func (h *TableHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	if err := ws.Planner.DeleteTable(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
