package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []string
	limited  []string
}

func (f *fakeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, method+" "+route+" "+http.StatusText(status))
}

func (f *fakeRecorder) RecordRateLimited(route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limited = append(f.limited, route)
}

func TestLogger_RecordsStatusAndRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Get("/api/guests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/guests/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, "route=/api/guests/{id}")
	assert.Contains(t, out, "bytes=4")
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	fr := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(fr))
	r.Delete("/api/tables/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/tables/t1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Len(t, fr.requests, 2)
	assert.Equal(t, "DELETE /api/tables/{id} No Content", fr.requests[0])
	assert.Equal(t, "GET unmatched Not Found", fr.requests[1])
}

func TestResponseWriter_UnwrapsForFlush(t *testing.T) {
	h := Logger(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, http.NewResponseController(w).Flush())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.True(t, rec.Flushed)
}

func TestRecoverer_Returns500(t *testing.T) {
	h := Recoverer(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	fr := &fakeRecorder{}
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 60, Burst: 2, CleanupInterval: time.Minute}, fr, discardLogger())
	defer rl.Stop()

	r := chi.NewRouter()
	r.With(rl.Middleware).Post("/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:2222").Code)

	limited := do("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body["error"])

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1111").Code)

	assert.Equal(t, []string{"/auth/signin"}, fr.limited)
	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PerMinute: 10, CleanupInterval: time.Minute}, nil, discardLogger())
	defer rl.Stop()

	rl.limiter("10.0.0.1")
	rl.limiter("10.0.0.2")
	require.Equal(t, 2, rl.ClientCount())

	rl.cleanup(time.Now().Add(time.Minute))
	assert.Equal(t, 2, rl.ClientCount(), "recently used clients are kept")

	rl.cleanup(time.Now().Add(3 * time.Minute))
	assert.Equal(t, 0, rl.ClientCount())
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig(0)
	assert.Equal(t, 20, cfg.PerMinute)
	assert.Equal(t, 20, cfg.Burst)

	cfg = DefaultRateLimiterConfig(5)
	assert.Equal(t, 5, cfg.Burst)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
}
