// Package scripting bootstraps an application outside the HTTP pipeline.
//
// A script prepares an environment from a configured application, uses the
// request it gets back to generate URLs, render templates or reach the
// database, and closes the environment when done:
//
//	env, err := scripting.Prepare(ctx, scripting.Options{Registry: app.Registry()})
//	if err != nil {
//		return err
//	}
//	defer env.Close()
//	url, err := env.Request.RouteURL("post", map[string]string{"id": "1"})
//
// With wraps the same steps so Close runs on every return path.
package scripting

import (
	"context"
	"fmt"
	"sync"

	"github.com/rafbgarcia/traverse"
)

// Application is what GetRoot needs from an app. *traverse.App implements it.
type Application interface {
	Registry() *traverse.Registry
	Root(req *traverse.Request) (any, error)
}

// MakeRequest builds a request for path with the registry's request
// factory and attaches the registry to it.
func MakeRequest(ctx context.Context, path string, reg *traverse.Registry) (*traverse.Request, error) {
	if reg == nil {
		return nil, traverse.ErrNoApplication
	}
	req, err := traverse.Blank(ctx, reg.RequestFactory(), path)
	if err != nil {
		return nil, err
	}
	req.Registry = reg
	return req, nil
}

// GetRoot makes req current on the app's context stack and computes the
// app's root for it. When req is nil a request for "/" is built. The
// returned closer pops the request again; it is safe to call more than once.
func GetRoot(ctx context.Context, app Application, req *traverse.Request) (root any, closer func(), err error) {
	reg := app.Registry()
	if reg == nil {
		return nil, nil, traverse.ErrNoApplication
	}
	if req == nil {
		req, err = MakeRequest(ctx, "/", reg)
		if err != nil {
			return nil, nil, err
		}
	}
	req.Registry = reg

	rc := traverse.NewRequestContext(reg.Stack(), req)
	rc.Begin()
	closer = rc.End

	root, err = app.Root(req)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return root, closer, nil
}

// Options select what Prepare bootstraps.
type Options struct {
	// Request is used instead of a fresh request for "/". Its Registry is
	// overwritten with the resolved registry.
	Request *traverse.Request
	// Registry is the application to bootstrap. When nil the request's
	// registry is used, then Registries.Last().
	Registry *traverse.Registry
	// Registries lists the loaded applications to fall back to.
	Registries *traverse.Registries
	// Stack receives the request frame. Defaults to the registry's stack.
	Stack *traverse.ContextStack
}

func (o Options) registry() *traverse.Registry {
	if o.Registry != nil {
		return o.Registry
	}
	if o.Request != nil && o.Request.Registry != nil {
		return o.Request.Registry
	}
	return o.Registries.Last()
}

// Prepare makes a request and registry current and computes the
// application root. The returned Env must be closed.
func Prepare(ctx context.Context, opts Options) (*Env, error) {
	reg := opts.registry()
	if reg == nil {
		return nil, traverse.ErrNoApplication
	}

	req := opts.Request
	if req == nil {
		var err error
		req, err = MakeRequest(ctx, "/", reg)
		if err != nil {
			return nil, err
		}
	}
	// Reset even when MakeRequest already set it: a caller-supplied request
	// may belong to another application.
	req.Registry = reg

	stack := opts.Stack
	if stack == nil {
		stack = reg.Stack()
	}
	rc := traverse.NewRequestContext(stack, req)
	rc.Begin()
	traverse.ApplyRequestExtensions(req, nil)

	env := &Env{
		Registry: reg,
		Request:  req,
		Stack:    stack,
	}
	env.Closer = func() {
		env.once.Do(func() {
			if req.FinishedCallbacks() > 0 {
				req.ProcessFinishedCallbacks()
			}
			rc.End()
		})
	}

	env.RootFactory = reg.RootFactory()
	root, err := env.RootFactory(req)
	if err != nil {
		env.Closer()
		return nil, fmt.Errorf("scripting: root factory: %w", err)
	}
	if req.Resource == nil {
		req.Resource = root
	}
	env.Root = root

	req.Logger().Debug("scripting environment prepared", "registry", reg.Name(), "path", req.URL.Path)
	return env, nil
}

// With prepares an environment, passes it to fn and closes it when fn
// returns or panics.
func With(ctx context.Context, opts Options, fn func(env *Env) error) error {
	env, err := Prepare(ctx, opts)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}

// Env is a prepared scripting environment.
type Env struct {
	Root        any
	Registry    *traverse.Registry
	Request     *traverse.Request
	RootFactory traverse.RootFactory
	// Closer finishes the request and pops it off the stack. Calls after
	// the first do nothing.
	Closer func()
	// Stack is the stack the request was pushed onto.
	Stack *traverse.ContextStack

	once sync.Once
}

// Close calls Closer. It implements io.Closer.
func (e *Env) Close() error {
	e.Closer()
	return nil
}

// Environment keys accepted by Get.
const (
	KeyRoot        = "root"
	KeyCloser      = "closer"
	KeyRegistry    = "registry"
	KeyRequest     = "request"
	KeyRootFactory = "root_factory"
)

// Keys returns the keys Get understands.
func (e *Env) Keys() []string {
	return []string{KeyRoot, KeyCloser, KeyRegistry, KeyRequest, KeyRootFactory}
}

// Get returns an environment value by key.
func (e *Env) Get(key string) (any, bool) {
	switch key {
	case KeyRoot:
		return e.Root, true
	case KeyCloser:
		return e.Closer, true
	case KeyRegistry:
		return e.Registry, true
	case KeyRequest:
		return e.Request, true
	case KeyRootFactory:
		return e.RootFactory, true
	}
	return nil, false
}

// Context returns a copy of parent carrying the environment's request.
func (e *Env) Context(parent context.Context) context.Context {
	return traverse.WithRequest(parent, e.Request)
}
