package handler

import (
	"net/http"
)

// Pinger is the database check behind /healthz.
type Pinger interface {
	Ping() error
}

// HandleHealth reports 200 while the database answers and 503 otherwise.
//
// HTTP: GET /healthz
func HandleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
