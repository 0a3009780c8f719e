package traverse

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Request is the framework's request object. It wraps the underlying
// *http.Request and carries the application registry and the context
// resource computed by the root factory.
type Request struct {
	*http.Request

	// Registry is the registry of the application serving the request.
	Registry *Registry
	// Resource is the context resource, the root unless something else
	// assigned it first.
	Resource any

	mu       sync.Mutex
	finished []func(*Request)
	methods  map[string]RequestMethod
	props    map[string]*boundProperty
}

// NewRequest wraps r without attaching a registry.
func NewRequest(r *http.Request) *Request {
	return &Request{Request: r}
}

// RequestFactory builds framework requests from HTTP requests. An
// application replaces the default one by providing a utility under
// RequestFactoryKey.
type RequestFactory interface {
	NewRequest(r *http.Request) (*Request, error)
}

// RequestFactoryFunc adapts a function to RequestFactory.
type RequestFactoryFunc func(r *http.Request) (*Request, error)

// NewRequest calls f(r).
func (f RequestFactoryFunc) NewRequest(r *http.Request) (*Request, error) {
	return f(r)
}

// DefaultRequestFactory wraps requests with NewRequest.
var DefaultRequestFactory RequestFactory = RequestFactoryFunc(func(r *http.Request) (*Request, error) {
	return NewRequest(r), nil
})

// Blank builds a GET request for path as if it arrived at
// http://localhost, then hands it to f. path may include a query string.
func Blank(ctx context.Context, f RequestFactory, path string) (*Request, error) {
	if f == nil {
		f = DefaultRequestFactory
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("traverse: blank request %q: %w", path, err)
	}
	req, err := f.NewRequest(hr)
	if err != nil {
		return nil, fmt.Errorf("traverse: request factory: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("traverse: request factory returned nil for %q", path)
	}
	return req, nil
}

// AddFinishedCallback registers fn to run once the request is finished.
func (r *Request) AddFinishedCallback(fn func(*Request)) {
	r.mu.Lock()
	r.finished = append(r.finished, fn)
	r.mu.Unlock()
}

// FinishedCallbacks returns how many finished callbacks are pending.
func (r *Request) FinishedCallbacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finished)
}

// ProcessFinishedCallbacks runs pending finished callbacks in the order
// they were added. Callbacks registered while processing also run.
func (r *Request) ProcessFinishedCallbacks() {
	for {
		r.mu.Lock()
		if len(r.finished) == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.finished[0]
		r.finished = r.finished[1:]
		r.mu.Unlock()
		fn(r)
	}
}

// Logger returns the application logger, or a default one when the
// registry has none.
func (r *Request) Logger() *Logger {
	if r.Registry != nil {
		if l, ok := Utility[*Logger](r.Registry, LoggerKey); ok {
			return l
		}
	}
	return NewLogger()
}

// DB returns the application's connection pool, or nil if no database was
// configured.
func (r *Request) DB() *sql.DB {
	if r.Registry == nil {
		return nil
	}
	db, _ := Utility[*sql.DB](r.Registry, DBKey)
	return db
}

// URLGenerator expands named routes into paths.
type URLGenerator interface {
	URLPath(name string, params map[string]string) (string, error)
}

// Renderer renders named templates.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// RoutePath returns the path for the named route.
func (r *Request) RoutePath(name string, params map[string]string) (string, error) {
	gen, err := requireUtility[URLGenerator](r, URLGeneratorKey)
	if err != nil {
		return "", err
	}
	return gen.URLPath(name, params)
}

// RouteURL returns the absolute URL for the named route, using the
// request's scheme and host.
func (r *Request) RouteURL(name string, params map[string]string) (string, error) {
	path, err := r.RoutePath(name, params)
	if err != nil {
		return "", err
	}
	return r.applicationURL() + path, nil
}

func (r *Request) applicationURL() string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if r.URL != nil && r.URL.Scheme != "" {
		scheme = r.URL.Scheme
	}
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host
}

// Render renders the named template into w using the application renderer.
func (r *Request) Render(w io.Writer, name string, data any) error {
	rn, err := requireUtility[Renderer](r, RendererKey)
	if err != nil {
		return err
	}
	return rn.Render(w, name, data)
}

// RenderToString renders the named template and returns the output.
func (r *Request) RenderToString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func requireUtility[T any](r *Request, key UtilityKey) (T, error) {
	var zero T
	if r.Registry == nil {
		return zero, &ConfigurationError{Msg: "request has no registry"}
	}
	v, ok := Utility[T](r.Registry, key)
	if !ok {
		return zero, &ConfigurationError{Msg: fmt.Sprintf("%s has no %s utility", r.Registry, key)}
	}
	return v, nil
}
