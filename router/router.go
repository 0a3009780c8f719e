// Package router provides the HTTP router used by traverse applications.
// It wraps chi, bridges chi URL params to Go's Request.PathValue() so
// handlers can call req.PathValue("id") transparently, and keeps a table of
// named routes for URL generation.
package router

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/rafbgarcia/traverse/internal/conventions"
)

// Route is a named route. Routes registered with Name have no handler and
// exist only for URL generation.
type Route struct {
	Name    string
	Method  string
	Pattern string
}

// Router is the HTTP router for traverse applications.
type Router struct {
	mux chi.Router

	mu     sync.RWMutex
	routes []Route
	byName map[string]Route
}

// New creates a Router with the PathValue bridge middleware applied.
func New() *Router {
	mux := chi.NewRouter()

	// Bridge chi URL params to Go's Request.PathValue() so user handlers
	// can call req.PathValue("id") regardless of the router.
	mux.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rctx := chi.RouteContext(req.Context())
			for i, key := range rctx.URLParams.Keys {
				req.SetPathValue(key, rctx.URLParams.Values[i])
			}
			next.ServeHTTP(w, req)
		})
	})

	return &Router{mux: mux, byName: map[string]Route{}}
}

// Use appends middleware to the router's stack. It must be called before
// any route is registered.
func (r *Router) Use(mw ...func(http.Handler) http.Handler) {
	r.mux.Use(mw...)
}

// Get registers a handler for GET requests at the given pattern.
func (r *Router) Get(pattern string, handler http.HandlerFunc) {
	r.mux.Get(pattern, handler)
}

// Handle registers an http.Handler at the given pattern.
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

// Add registers a named route. An empty method matches every method.
// Names must be unique.
func (r *Router) Add(name, method, pattern string, handler http.Handler) error {
	if err := r.record(Route{Name: name, Method: method, Pattern: pattern}); err != nil {
		return err
	}
	if handler == nil {
		return nil
	}
	if method == "" {
		r.mux.Handle(pattern, handler)
	} else {
		r.mux.Method(method, pattern, handler)
	}
	return nil
}

// Name registers a route used only to generate URLs.
func (r *Router) Name(name, pattern string) error {
	return r.record(Route{Name: name, Pattern: pattern})
}

func (r *Router) record(rt Route) error {
	if rt.Name == "" {
		return fmt.Errorf("router: route for %q has no name", rt.Pattern)
	}
	if len(rt.Pattern) == 0 || rt.Pattern[0] != '/' {
		return fmt.Errorf("router: route %q: pattern %q must start with /", rt.Name, rt.Pattern)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[rt.Name]; dup {
		return fmt.Errorf("router: duplicate route name %q", rt.Name)
	}
	r.byName[rt.Name] = rt
	r.routes = append(r.routes, rt)
	return nil
}

// Routes returns the named routes in registration order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Lookup returns the named route.
func (r *Router) Lookup(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byName[name]
	return rt, ok
}

// URLPath expands the named route's pattern with params.
func (r *Router) URLPath(name string, params map[string]string) (string, error) {
	rt, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("router: no route named %q", name)
	}
	path, err := conventions.ExpandPattern(rt.Pattern, params)
	if err != nil {
		return "", fmt.Errorf("router: route %q: %w", name, err)
	}
	return path, nil
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
