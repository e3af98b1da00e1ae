package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/wedchart/internal/model"
)

// ProfileResolver returns the profile whose changes a request may stream.
type ProfileResolver func(r *http.Request) (profileID string, ok bool)

// Handler streams a profile's changes as Server-Sent Events.
//
// Event names are the relation ("guests", "tables", "profiles"); the data
// line is the JSON-encoded model.Change. A "heartbeat" event keeps idle
// connections open through proxies.
type Handler struct {
	broker    *Broker
	resolve   ProfileResolver
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates an SSE handler.
func NewHandler(broker *Broker, resolve ProfileResolver, logger *slog.Logger) *Handler {
	return &Handler{
		broker:    broker,
		resolve:   resolve,
		logger:    logger,
		heartbeat: 30 * time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.resolve(r)
	if !ok {
		http.Error(w, `{"error":"unauthorized","message":"No profile found"}`, http.StatusUnauthorized)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush SSE headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := h.broker.Subscribe(profileID, model.RelationGuests, model.RelationTables, model.RelationProfiles)
	defer sub.Close()

	log := h.logger.With(slog.String("subscription_id", sub.ID()))

	if err := h.send(w, rc, "connected", map[string]string{"subscriptionId": sub.ID()}); err != nil {
		log.Warn("failed to send SSE greeting", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case change, open := <-sub.Changes():
			if !open {
				log.Info("SSE subscription closed by broker")
				return
			}
			if err := h.send(w, rc, string(change.Relation), change); err != nil {
				log.Info("SSE client disconnected during send")
				return
			}
		case <-ticker.C:
			if err := h.send(w, rc, "heartbeat", map[string]time.Time{"at": time.Now().UTC()}); err != nil {
				log.Info("SSE client disconnected during heartbeat")
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) send(w http.ResponseWriter, rc *http.ResponseController, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("realtime: encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	// The server's WriteTimeout would otherwise cut long-lived streams.
	if err := rc.SetWriteDeadline(time.Now().Add(2 * h.heartbeat)); err != nil {
		h.logger.Debug("failed to extend SSE write deadline", slog.String("error", err.Error()))
	}
	return nil
}
