// Package workspace holds the managers of every signed-in browser session.
//
// A Workspace is one session's AuthClient, Session Manager and Guest/Table
// Manager, wired together. The Registry keys workspaces by session id,
// rebuilds one from the session cookie after a restart, and closes those
// left idle.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/wedchart/internal/auth"
	"github.com/sakif/wedchart/internal/planner"
	"github.com/sakif/wedchart/internal/service"
	"github.com/sakif/wedchart/internal/session"
)

// Workspace is one browser session's set of managers.
type Workspace struct {
	Auth    *service.AuthClient
	Session *session.Manager
	Planner *planner.Manager

	mu       sync.Mutex
	lastUsed time.Time
}

// ID is the session id the workspace is registered under, or "" before
// sign-in.
func (w *Workspace) ID() string {
	if s := w.Session.Session(); s != nil {
		return s.ID
	}
	return ""
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastUsed = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

func (w *Workspace) close() {
	w.Session.Close()
	w.Planner.ResetStore()
}

// Recorder receives the number of open workspaces. *metrics.Collector
// implements it.
type Recorder interface {
	SetActiveWorkspaces(n int)
}

// Deps are the shared services every workspace is built from.
type Deps struct {
	Identity        *service.IdentityService
	Data            *service.DataService
	Feed            planner.Feed
	Planner         planner.Config
	PlannerRecorder planner.Recorder
}

// Registry owns every open workspace.
type Registry struct {
	deps    Deps
	idleTTL time.Duration
	rec     Recorder
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	byID   map[string]*Workspace
	resume singleflight.Group
}

// NewRegistry creates an empty Registry. Workspaces unused for idleTTL are
// closed by Sweep. rec may be nil.
func NewRegistry(deps Deps, idleTTL time.Duration, rec Recorder, logger *slog.Logger) *Registry {
	return &Registry{
		deps:    deps,
		idleTTL: idleTTL,
		rec:     rec,
		logger:  logger,
		now:     time.Now,
		byID:    make(map[string]*Workspace),
	}
}

// Open builds a signed-out workspace for a sign-in or sign-up request. It
// is not registered until Bind.
func (r *Registry) Open(ctx context.Context) (*Workspace, error) {
	w := r.build()
	if err := w.Session.Initialize(ctx, w.Planner); err != nil {
		w.close()
		return nil, fmt.Errorf("workspace: initializing: %w", err)
	}
	return w, nil
}

func (r *Registry) build() *Workspace {
	client := service.NewAuthClient(r.deps.Identity, r.logger)
	sess := session.New(client, r.deps.Data, r.logger)
	plan := planner.New(r.deps.Data, r.deps.Feed, sess, r.deps.Planner, r.deps.PlannerRecorder, r.logger)
	w := &Workspace{Auth: client, Session: sess, Planner: plan}
	w.touch(r.now())
	return w
}

// Bind registers a signed-in workspace under its session id.
func (r *Registry) Bind(w *Workspace) error {
	id := w.ID()
	if id == "" {
		return fmt.Errorf("workspace: binding a signed-out workspace")
	}
	w.touch(r.now())

	r.mu.Lock()
	prev := r.byID[id]
	r.byID[id] = w
	n := len(r.byID)
	r.mu.Unlock()

	if prev != nil && prev != w {
		prev.close()
	}
	r.report(n)
	return nil
}

// Discard closes a workspace that was opened but never bound, such as one
// whose sign-in failed.
func (r *Registry) Discard(w *Workspace) {
	if w != nil {
		w.close()
	}
}

// Get returns the workspace registered for sessionID.
func (r *Registry) Get(sessionID string) (*Workspace, bool) {
	r.mu.Lock()
	w, ok := r.byID[sessionID]
	r.mu.Unlock()
	if ok {
		w.touch(r.now())
	}
	return w, ok
}

// Resume returns the workspace for id, rebuilding it from the token when
// the registry does not hold one (after a restart, or once it was swept).
// Concurrent calls for the same session share one rebuild.
func (r *Registry) Resume(ctx context.Context, id auth.Identity) (*Workspace, error) {
	if w, ok := r.Get(id.SessionID); ok {
		return w, nil
	}

	v, err, _ := r.resume.Do(id.SessionID, func() (any, error) {
		if w, ok := r.Get(id.SessionID); ok {
			return w, nil
		}

		result, err := r.deps.Identity.GetSession(ctx, id.Token)
		if err != nil {
			return nil, err
		}

		w := r.build()
		w.Auth.Restore(result)
		if err := w.Session.Initialize(ctx, w.Planner); err != nil {
			w.close()
			return nil, fmt.Errorf("workspace: restoring session: %w", err)
		}
		if err := w.Planner.InitializeData(ctx); err != nil {
			w.close()
			return nil, fmt.Errorf("workspace: loading data: %w", err)
		}
		if err := r.Bind(w); err != nil {
			w.close()
			return nil, err
		}

		r.logger.Info("workspace restored",
			slog.String("session_id", id.SessionID),
			slog.String("user_id", id.UserID),
		)
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

// Close removes and closes the workspace for sessionID, if any.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	w, ok := r.byID[sessionID]
	delete(r.byID, sessionID)
	n := len(r.byID)
	r.mu.Unlock()

	if ok {
		w.close()
		r.report(n)
	}
}

// Sweep closes every workspace idle for longer than the idle TTL and
// returns how many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var stale []*Workspace
	for id, w := range r.byID {
		if w.idleSince().Before(cutoff) {
			stale = append(stale, w)
			delete(r.byID, id)
		}
	}
	n := len(r.byID)
	r.mu.Unlock()

	for _, w := range stale {
		w.close()
	}
	if len(stale) > 0 {
		r.logger.Info("idle workspaces closed", slog.Int("closed", len(stale)), slog.Int("open", n))
		r.report(n)
	}
	return len(stale)
}

// CloseAll closes every workspace. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.byID
	r.byID = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, w := range all {
		w.close()
	}
	r.report(0)
}

// Len returns the number of registered workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Registry) report(n int) {
	if r.rec != nil {
		r.rec.SetActiveWorkspaces(n)
	}
}

// ===== HTTP =====

type contextKey string

const workspaceKey contextKey = "workspace"

// WithWorkspace returns a copy of ctx carrying w.
func WithWorkspace(ctx context.Context, w *Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey, w)
}

// FromContext returns the request's workspace.
func FromContext(ctx context.Context) (*Workspace, bool) {
	w, ok := ctx.Value(workspaceKey).(*Workspace)
	return w, ok && w != nil
}

// Middleware attaches the caller's workspace to the request. It must run
// after auth.RequireAuth.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id, ok := auth.IdentityFromContext(req.Context())
		if !ok {
			writeUnauthorized(w)
			return
		}

		ws, err := r.Resume(req.Context(), id)
		if err != nil {
			r.logger.Warn("workspace unavailable",
				slog.String("session_id", id.SessionID),
				slog.String("error", err.Error()),
			)
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, req.WithContext(WithWorkspace(req.Context(), ws)))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","message":"No authenticated user"}`))
}
