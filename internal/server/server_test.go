package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/wedchart/internal/auth"
	"github.com/sakif/wedchart/internal/config"
)

func newTestServer(t *testing.T, rateLimit int) *Server {
	t.Helper()
	static := t.TempDir()
	require.NoError(t, os.WriteFile(static+"/index.html", []byte("<html>wedchart</html>"), 0o644))

	cfg := &config.Config{
		Port:             8080,
		BaseURL:          "http://localhost:8080",
		StaticDir:        static,
		DBPath:           ":memory:",
		JWTSecret:        "server-test-secret-value",
		SessionTTL:       time.Hour,
		AuthRateLimit:    rateLimit,
		WorkspaceIdleTTL: time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func serve(s *Server, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func signUp(t *testing.T, s *Server) *http.Cookie {
	t.Helper()
	rr := serve(s, http.MethodPost, "/auth/signup",
		`{"email":"jane@example.com","password":"secret-pw","fullName":"Jane Doe"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, 100)
	rr := serve(s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
}

func TestRouteGuard(t *testing.T) {
	s := newTestServer(t, 100)

	rr := serve(s, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "wedchart")

	rr = serve(s, http.MethodGet, "/dashboard", "", nil)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/login", "", nil).Code)

	cookie := signUp(t, s)

	rr = serve(s, http.MethodGet, "/login", "", cookie)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/dashboard", "", cookie).Code)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/account", "", cookie).Code)
}

func TestAPI_RequiresSession(t *testing.T) {
	s := newTestServer(t, 100)
	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodGet, "/api/guests", "", nil).Code)

	cookie := signUp(t, s)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/api/guests", "", cookie).Code)
}

func TestWorkspaceSurvivesEviction(t *testing.T) {
	s := newTestServer(t, 100)
	cookie := signUp(t, s)

	rr := serve(s, http.MethodPost, "/api/guests", `{"name":"Alice"}`, cookie)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// Dropping every workspace, as a restart would, loses nothing: the next
	// request rebuilds it from the cookie.
	s.registry.CloseAll()
	require.Equal(t, 0, s.registry.Len())

	rr = serve(s, http.MethodGet, "/api/guests", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Alice")
	assert.Equal(t, 1, s.registry.Len())
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t, 2)

	body := `{"email":"nobody@example.com","password":"whatever"}`
	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodPost, "/auth/signin", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodPost, "/auth/signin", body, nil).Code)

	rr := serve(s, http.MethodPost, "/auth/signin", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 100)
	signUp(t, s)
	serve(s, http.MethodGet, "/healthz", "", nil)

	rr := serve(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	out := rr.Body.String()
	assert.Contains(t, out, `wedchart_http_requests_total{method="GET",route="/healthz",status_code="200"} 1`)
	assert.Contains(t, out, `wedchart_auth_events_total{event="signup",outcome="success"} 1`)
	assert.Contains(t, out, `wedchart_active_workspaces 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t, 100)
	cookie := signUp(t, s)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	waitFor := func(name string) {
		t.Helper()
		for {
			select {
			case got, ok := <-events:
				require.True(t, ok, "stream ended before %q", name)
				if got == name {
					return
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %q", name)
			}
		}
	}

	waitFor("connected")

	add, err := http.NewRequest(http.MethodPost, ts.URL+"/api/guests", strings.NewReader(`{"name":"Alice"}`))
	require.NoError(t, err)
	add.Header.Set("Content-Type", "application/json")
	add.AddCookie(cookie)
	addResp, err := ts.Client().Do(add)
	require.NoError(t, err)
	io.Copy(io.Discard, addResp.Body)
	addResp.Body.Close()
	require.Equal(t, http.StatusCreated, addResp.StatusCode)

	waitFor("guests")
}
