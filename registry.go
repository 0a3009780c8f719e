package traverse

import (
	"fmt"
	"strconv"
	"sync"
)

// UtilityKey names a utility stored in a Registry.
type UtilityKey string

// Utility keys the framework itself reads.
const (
	RequestFactoryKey UtilityKey = "request_factory"
	RootFactoryKey    UtilityKey = "root_factory"
	URLGeneratorKey   UtilityKey = "url_generator"
	RendererKey       UtilityKey = "renderer"
	DBKey             UtilityKey = "db"
	LoggerKey         UtilityKey = "logger"
)

// Registry is an application's component lookup table. Utilities are
// provided at setup time and looked up by requests, scripts and handlers.
//
// A Registry is safe for concurrent use.
type Registry struct {
	name string

	mu         sync.RWMutex
	utilities  map[UtilityKey]any
	settings   Settings
	extensions *RequestExtensions
	stack      *ContextStack
}

// NewRegistry creates an empty registry.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:       name,
		utilities:  map[UtilityKey]any{},
		settings:   Settings{},
		extensions: NewRequestExtensions(),
		stack:      NewContextStack(),
	}
}

// Name returns the name the registry was created with.
func (r *Registry) Name() string { return r.name }

// String names the registry for logs and errors.
func (r *Registry) String() string {
	return "Registry(" + strconv.Quote(r.name) + ")"
}

// Provide stores val under key and returns the registry for chaining.
// Providing nil removes the utility.
func (r *Registry) Provide(key UtilityKey, val any) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if val == nil {
		delete(r.utilities, key)
		return r
	}
	r.utilities[key] = val
	return r
}

// Lookup returns the utility stored under key.
func (r *Registry) Lookup(key UtilityKey) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.utilities[key]
	return v, ok
}

// QueryUtility returns the utility stored under key, or def when absent.
func (r *Registry) QueryUtility(key UtilityKey, def any) any {
	if v, ok := r.Lookup(key); ok {
		return v
	}
	return def
}

// MustLookup returns the utility or panics naming the missing key.
func (r *Registry) MustLookup(key UtilityKey) any {
	v, ok := r.Lookup(key)
	if !ok {
		panic(fmt.Errorf("traverse: %s has no utility %q", r, key))
	}
	return v
}

// Utility is a typed Lookup. It reports false when the key is missing or
// holds a value of another type.
func Utility[T any](r *Registry, key UtilityKey) (T, bool) {
	var zero T
	v, ok := r.Lookup(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// RequestFactory returns the registered request factory, falling back to
// DefaultRequestFactory.
func (r *Registry) RequestFactory() RequestFactory {
	if f, ok := Utility[RequestFactory](r, RequestFactoryKey); ok {
		return f
	}
	return DefaultRequestFactory
}

// RootFactory returns the registered root factory, falling back to
// DefaultRootFactory.
func (r *Registry) RootFactory() RootFactory {
	switch f := r.QueryUtility(RootFactoryKey, nil).(type) {
	case RootFactory:
		if f != nil {
			return f
		}
	case func(*Request) (any, error):
		if f != nil {
			return f
		}
	}
	return DefaultRootFactory
}

// Settings returns a copy of the registry's settings.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Settings, len(r.settings))
	for k, v := range r.settings {
		out[k] = v
	}
	return out
}

// SetSettings merges s into the registry's settings.
func (r *Registry) SetSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range s {
		r.settings[k] = v
	}
}

// Extensions returns the request extensions registered for this application.
func (r *Registry) Extensions() *RequestExtensions {
	return r.extensions
}

// Stack returns the context stack scripts push onto for this application.
func (r *Registry) Stack() *ContextStack {
	return r.stack
}

// Settings holds deployment settings loaded at application setup.
type Settings map[string]any

// String returns the setting as a string, or "" when absent.
func (s Settings) String(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Bool interprets the setting as a boolean. Non-zero numbers of any kind
// and strings such as "true", "yes", "on" and "1" count as true.
func (s Settings) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "yes", "on", "1", "t", "y":
			return true
		}
	case int:
		return v != 0
	case int8:
		return v != 0
	case int16:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case uint:
		return v != 0
	case uint8:
		return v != 0
	case uint16:
		return v != 0
	case uint32:
		return v != 0
	case uint64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}
