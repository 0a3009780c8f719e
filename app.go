package traverse

import (
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/rafbgarcia/traverse/renderer"
	"github.com/rafbgarcia/traverse/router"
)

// App holds an application's registry and the services registered in it.
// It is configured at startup and then served over HTTP or bootstrapped
// from scripts.
type App struct {
	registry *Registry
	router   *router.Router
	log      *Logger
	db       *sql.DB
}

// NewApp creates an App with a fresh registry, router and logger.
func NewApp(name string) *App {
	reg := NewRegistry(name)
	r := router.New()
	log := NewLogger().With("app", name)
	reg.Provide(URLGeneratorKey, r).Provide(LoggerKey, log)
	return &App{registry: reg, router: r, log: log}
}

// Registry returns the application registry.
func (a *App) Registry() *Registry { return a.registry }

// Stack returns the context stack of the application registry.
func (a *App) Stack() *ContextStack { return a.registry.Stack() }

// Router returns the application router.
func (a *App) Router() *router.Router { return a.router }

// Logger returns the application logger.
func (a *App) Logger() *Logger { return a.log }

// SetLogger replaces the application logger.
func (a *App) SetLogger(l *Logger) {
	a.log = l
	a.registry.Provide(LoggerKey, l)
}

// Database opens a connection pool using the given driver and DSN.
func (a *App) Database(driverName, dataSourceName string) error {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.registry.Provide(DBKey, db)
	return nil
}

// DB returns the configured *sql.DB, or nil if no database was configured.
func (a *App) DB() *sql.DB {
	return a.db
}

// Templates parses the templates in fsys matching patterns and registers
// the result as the application renderer.
func (a *App) Templates(fsys fs.FS, patterns ...string) error {
	rn, err := renderer.New(fsys, patterns...)
	if err != nil {
		return err
	}
	a.registry.Provide(RendererKey, rn)
	return nil
}

// SetRootFactory registers the factory computing the application root.
func (a *App) SetRootFactory(f RootFactory) {
	a.registry.Provide(RootFactoryKey, f)
}

// SetRequestFactory registers the factory wrapping incoming requests.
func (a *App) SetRequestFactory(f RequestFactory) {
	a.registry.Provide(RequestFactoryKey, f)
}

// SetSettings merges s into the application settings.
func (a *App) SetSettings(s Settings) {
	a.registry.SetSettings(s)
}

// AddRequestMethod adds a method callable on every request with Call.
func (a *App) AddRequestMethod(name string, fn RequestMethod) {
	a.registry.Extensions().AddMethod(name, fn)
}

// AddRequestProperty adds a property readable on every request with
// Property. A reified property is computed once per request.
func (a *App) AddRequestProperty(name string, fn RequestProperty, reify bool) {
	a.registry.Extensions().AddProperty(name, fn, reify)
}

// Use appends middleware to the router. Call it before adding routes.
func (a *App) Use(mw ...Middleware) {
	a.router.Use(mw...)
}

// Handle serves handler at pattern for every method without naming the
// route.
func (a *App) Handle(pattern string, handler http.Handler) {
	a.router.Handle(pattern, handler)
}

// Get serves handler for GET requests at pattern without naming the route.
func (a *App) Get(pattern string, handler HandlerFunc) {
	a.router.Get(pattern, handler.ServeHTTP)
}

// Route registers a named route served by handler.
func (a *App) Route(name, method, pattern string, handler http.Handler) error {
	return a.router.Add(name, method, pattern, handler)
}

// NamedRoute registers a route used only for URL generation.
func (a *App) NamedRoute(name, pattern string) error {
	return a.router.Name(name, pattern)
}

// Publish records the application registry as the most recently loaded
// one, which scripts fall back to when given no registry.
func (a *App) Publish(regs *Registries) {
	regs.Add(a.registry)
}

// Root computes the root resource for req with the registered root factory.
func (a *App) Root(req *Request) (any, error) {
	root, err := a.registry.RootFactory()(req)
	if err != nil {
		return nil, fmt.Errorf("traverse: root factory: %w", err)
	}
	return root, nil
}

// ServeHTTP builds a Request for r, computes its root and dispatches it
// through the router. Handlers get the Request with RequestFrom or by
// using HandlerFunc.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := a.registry.RequestFactory().NewRequest(r)
	if err != nil {
		a.log.Error("request factory failed", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	req.Registry = a.registry
	ApplyRequestExtensions(req, nil)
	defer req.ProcessFinishedCallbacks()

	root, err := a.Root(req)
	if err != nil {
		a.log.Error("root factory failed", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if req.Resource == nil {
		req.Resource = root
	}

	req.Request = r.WithContext(WithRequest(r.Context(), req))
	a.router.ServeHTTP(w, req.Request)
}

// Close shuts down the application, closing the database connection pool if open.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// HandlerFunc is a handler that receives the framework request.
type HandlerFunc func(w http.ResponseWriter, req *Request)

// ServeHTTP implements http.Handler. Outside an App the request is wrapped
// without a registry.
func (h HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, ok := RequestFrom(r.Context())
	if !ok {
		req = NewRequest(r)
	}
	// The router hands down a copy carrying route params.
	req.Request = r
	h(w, req)
}
