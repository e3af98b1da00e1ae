package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/sakif/wedchart/internal/apperror"
	"github.com/sakif/wedchart/internal/model"
)

// maxCSVBytes caps an uploaded guest file.
const maxCSVBytes = 5 << 20

// ImportHandler serves the bulk CSV import: a dry-run preview and the
// import itself.
//
// The CSV text is accepted either as a raw text/csv (or text/plain) body or
// as JSON {"csv": "..."}.
type ImportHandler struct {
	logger *slog.Logger
}

func NewImportHandler(logger *slog.Logger) *ImportHandler {
	return &ImportHandler{logger: logger}
}

type csvRequest struct {
	CSV string `json:"csv"`
}

// PreviewResponse lists every parsed row with its own errors.
type PreviewResponse struct {
	Rows    []model.CSVRow `json:"rows"`
	Valid   int            `json:"valid"`
	Invalid int            `json:"invalid"`
}

// HandlePreview parses the file without writing anything.
//
// HTTP: POST /api/import/preview
func (h *ImportHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	text, err := readCSV(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := ws.Planner.ParseCSV(text)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := PreviewResponse{Rows: rows}
	for _, row := range rows {
		if row.IsValid {
			resp.Valid++
		} else {
			resp.Invalid++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleImport parses the file and imports every row. Invalid rows are
// counted as failed; the tally is returned even when some rows fail.
//
// HTTP: POST /api/import
func (h *ImportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	text, err := readCSV(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := ws.Planner.ParseCSV(text)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := ws.Planner.ImportFromCSV(r.Context(), rows)
	if err != nil {
		h.logger.Warn("import aborted",
			slog.Int("success", result.Success),
			slog.Int("failed", result.Failed),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func readCSV(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv", "text/plain":
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return "", apperror.ValidationFailed("csv", "Could not read the uploaded file")
		}
		return string(b), nil
	default:
		var req csvRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", apperror.ValidationFailed("body", "Invalid JSON body")
		}
		return req.CSV, nil
	}
}
