// Package guard decides, before a page is served, whether the visitor
// should be sent somewhere else.
//
//	/                      → always served
//	/login, /signup        → /dashboard when signed in
//	/account, /dashboard/* → /login when signed out
//
// Everything else is served as is.
package guard

import (
	"net/http"
	"strings"
)

const (
	LoginPath     = "/login"
	LandingPath   = "/dashboard"
	signupPath    = "/signup"
	accountPrefix = "/account"
)

// Decide returns where to send a visitor to path, or allowed=true when the
// page may be served.
func Decide(path string, authenticated bool) (redirect string, allowed bool) {
	path = normalize(path)

	if path == "/" {
		return "", true
	}
	if authenticated && (path == LoginPath || path == signupPath) {
		return LandingPath, false
	}
	if !authenticated && (underPrefix(path, accountPrefix) || underPrefix(path, LandingPath)) {
		return LoginPath, false
	}
	return "", true
}

// Middleware applies Decide to every request, redirecting with 302 Found.
// authenticated reports whether the request carries a signed-in session.
func Middleware(authenticated func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if to, ok := Decide(r.URL.Path, authenticated(r)); !ok {
				http.Redirect(w, r, to, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
