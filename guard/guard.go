// Package guard decides whether a navigation may proceed given the session
// state, over a fixed route table.
package guard

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned by Require when a route needs a session.
var ErrUnauthenticated = errors.New("not logged in")

// Route paths.
const (
	PathRoot   = "/"
	PathLogin  = "/login"
	PathTokens = "/tokens"
)

// Route is an entry of the route table.
type Route struct {
	Name         string
	Path         string
	RequiresAuth bool
	// Redirect, when set, sends every visit to another path.
	Redirect string
}

// Routes is the static route table. The last entry is the catch-all.
var Routes = []Route{
	{Name: "Root", Path: PathRoot, Redirect: PathTokens},
	{Name: "Login", Path: PathLogin},
	{Name: "Tokens", Path: PathTokens, RequiresAuth: true},
	{Name: "NotFound", Path: "*"},
}

// NotFound is the catch-all route.
var NotFound = Routes[len(Routes)-1]

// Resolve maps a path to its route. /tokens covers every /tokens/... path.
func Resolve(path string) Route {
	if path == "" {
		path = PathRoot
	}
	if path != PathRoot {
		path = strings.TrimRight(path, "/")
	}
	for _, r := range Routes[:len(Routes)-1] {
		if path == r.Path {
			return r
		}
		if r.RequiresAuth && strings.HasPrefix(path, r.Path+"/") {
			return r
		}
	}
	return NotFound
}

// Decision is the outcome of a guard check.
type Decision struct {
	// Proceed is true when navigation continues to the requested route.
	Proceed bool
	// Redirect is the target path when Proceed is false.
	Redirect string
}

// Decide applies the guard rules to a resolved route.
func Decide(r Route, authenticated bool) Decision {
	if r.Redirect != "" {
		return Decision{Redirect: r.Redirect}
	}
	switch {
	case r.RequiresAuth && !authenticated:
		return Decision{Redirect: PathLogin}
	case r.Path == PathLogin && authenticated:
		return Decision{Redirect: PathTokens}
	default:
		return Decision{Proceed: true}
	}
}

// Authenticated reports the current session state.
type Authenticated func() bool

// Middleware redirects requests that Decide does not let through. Route
// paths are matched against the request path with prefix stripped.
func Middleware(prefix string, authed Authenticated) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimPrefix(r.URL.Path, prefix)
			d := Decide(Resolve(path), authed())
			if d.Proceed {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, prefix+d.Redirect, http.StatusFound)
		})
	}
}

// Require returns ErrUnauthenticated when path needs a session that is not
// present. Redirects that do not concern authentication are ignored.
func Require(path string, authenticated bool) error {
	d := Decide(Resolve(path), authenticated)
	if !d.Proceed && d.Redirect == PathLogin {
		return ErrUnauthenticated
	}
	return nil
}
