package traverse

import (
	"fmt"
	"sync"
)

// RequestMethod is a method added to every request of an application.
type RequestMethod func(req *Request, args ...any) (any, error)

// RequestProperty computes a property value for a request.
type RequestProperty func(req *Request) any

type propertyDef struct {
	fn    RequestProperty
	reify bool
}

type boundProperty struct {
	def  propertyDef
	once sync.Once
	val  any
}

func (p *boundProperty) get(r *Request) any {
	if !p.def.reify {
		return p.def.fn(r)
	}
	p.once.Do(func() { p.val = p.def.fn(r) })
	return p.val
}

// RequestExtensions are the methods and properties an application adds to
// its requests at setup time.
type RequestExtensions struct {
	mu      sync.RWMutex
	methods map[string]RequestMethod
	props   map[string]propertyDef
}

// NewRequestExtensions returns an empty set of extensions.
func NewRequestExtensions() *RequestExtensions {
	return &RequestExtensions{
		methods: map[string]RequestMethod{},
		props:   map[string]propertyDef{},
	}
}

// AddMethod registers fn under name. A later registration replaces an
// earlier one.
func (e *RequestExtensions) AddMethod(name string, fn RequestMethod) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.methods[name] = fn
}

// AddProperty registers a property. A reified property is computed on first
// access and cached for the lifetime of the request.
func (e *RequestExtensions) AddProperty(name string, fn RequestProperty, reify bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[name] = propertyDef{fn: fn, reify: reify}
}

// Len returns the number of registered methods and properties.
func (e *RequestExtensions) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.methods) + len(e.props)
}

// ApplyRequestExtensions binds exts to req. When exts is nil the extensions
// of the request's registry are used.
func ApplyRequestExtensions(req *Request, exts *RequestExtensions) {
	if exts == nil && req.Registry != nil {
		exts = req.Registry.Extensions()
	}
	if exts == nil {
		return
	}

	exts.mu.RLock()
	methods := make(map[string]RequestMethod, len(exts.methods))
	for k, v := range exts.methods {
		methods[k] = v
	}
	props := make(map[string]*boundProperty, len(exts.props))
	for k, v := range exts.props {
		props[k] = &boundProperty{def: v}
	}
	exts.mu.RUnlock()

	req.mu.Lock()
	defer req.mu.Unlock()
	if req.methods == nil {
		req.methods = map[string]RequestMethod{}
	}
	for k, v := range methods {
		req.methods[k] = v
	}
	if req.props == nil {
		req.props = map[string]*boundProperty{}
	}
	for k, v := range props {
		req.props[k] = v
	}
}

// Call invokes the extension method registered under name.
func (r *Request) Call(name string, args ...any) (any, error) {
	r.mu.Lock()
	fn, ok := r.methods[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("traverse: request has no method %q", name)
	}
	return fn(r, args...)
}

// Property returns the extension property registered under name.
func (r *Request) Property(name string) (any, bool) {
	r.mu.Lock()
	p, ok := r.props[name]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return p.get(r), true
}
