package scripting_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafbgarcia/traverse"
	"github.com/rafbgarcia/traverse/scripting"
)

func newApp(t *testing.T) *traverse.App {
	t.Helper()
	app := traverse.NewApp("blog")
	require.NoError(t, app.NamedRoute("home", "/"))
	require.NoError(t, app.NamedRoute("post", "/posts/{id:[0-9]+}"))
	require.NoError(t, app.Templates(fstest.MapFS{
		"post.html": {Data: []byte(`<h1>{{.Title}}</h1>`)},
	}))
	t.Cleanup(func() { app.Close() })
	return app
}

//
// -----------------------------------------------------------------------------
// Prepare: registry resolution
// -----------------------------------------------------------------------------

// TestPrepare_NoApplication verifies Prepare fails with a configuration error
// when there is nothing to bootstrap.
func TestPrepare_NoApplication(t *testing.T) {
	t.Parallel()

	env, err := scripting.Prepare(context.Background(), scripting.Options{})
	require.Error(t, err)
	assert.Nil(t, env)
	assert.ErrorIs(t, err, traverse.ErrNoApplication)

	var cfgErr *traverse.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "no valid applications")
}

// TestPrepare_EmptyRegistries verifies an empty Registries list does not
// count as a loaded application.
func TestPrepare_EmptyRegistries(t *testing.T) {
	t.Parallel()

	_, err := scripting.Prepare(context.Background(), scripting.Options{
		Registries: traverse.NewRegistries(),
		Request:    traverse.NewRequest(&http.Request{}),
	})
	assert.ErrorIs(t, err, traverse.ErrNoApplication)
}

// TestPrepare_WithRegistry verifies the returned environment and the frame
// pushed on the registry stack.
func TestPrepare_WithRegistry(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)

	assert.Same(t, reg, env.Registry)
	assert.Same(t, reg, env.Request.Registry)
	assert.Equal(t, "/", env.Request.URL.Path)
	assert.Equal(t, "localhost", env.Request.Host)
	assert.IsType(t, &traverse.DefaultRoot{}, env.Root)
	assert.Equal(t, env.Root, env.Request.Resource)
	require.NotNil(t, env.RootFactory)

	assert.Equal(t, 1, reg.Stack().Len())
	assert.Same(t, env.Request, reg.Stack().CurrentRequest())
	assert.Same(t, reg, reg.Stack().CurrentRegistry())

	require.NoError(t, env.Close())
	assert.Equal(t, 0, reg.Stack().Len())
}

// TestPrepare_CloserIdempotent verifies the closer may be called repeatedly
// and pops only once.
func TestPrepare_CloserIdempotent(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	outer, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)
	defer outer.Close()

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)
	require.Equal(t, 2, reg.Stack().Len())

	env.Closer()
	env.Closer()
	require.NoError(t, env.Close())

	assert.Equal(t, 1, reg.Stack().Len())
	assert.Same(t, outer.Request, reg.Stack().CurrentRequest())
}

// TestPrepare_SessionsClosedOutOfOrder verifies closing an earlier session
// leaves a later, still open session current.
func TestPrepare_SessionsClosedOutOfOrder(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	first, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)
	second, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)

	require.NoError(t, first.Close())
	assert.Equal(t, 1, reg.Stack().Len())
	assert.Same(t, second.Request, reg.Stack().CurrentRequest())

	require.NoError(t, second.Close())
	assert.Equal(t, 0, reg.Stack().Len())
}

// TestPrepare_OverwritesRequestRegistry verifies a supplied request ends up
// bound to the resolved registry whatever it carried before.
func TestPrepare_OverwritesRequestRegistry(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	other := traverse.NewRegistry("other")

	req, err := scripting.MakeRequest(context.Background(), "/admin", other)
	require.NoError(t, err)
	require.Same(t, other, req.Registry)

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg, Request: req})
	require.NoError(t, err)
	defer env.Close()

	assert.Same(t, req, env.Request)
	assert.Same(t, reg, req.Registry)
	assert.Equal(t, "/admin", req.URL.Path)
	assert.Equal(t, 0, other.Stack().Len())
}

// TestPrepare_RequestRegistryFallback verifies the request's registry is
// used when no registry is given.
func TestPrepare_RequestRegistryFallback(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	last := traverse.NewRegistry("last")
	regs := traverse.NewRegistries()
	regs.Add(last)

	req, err := scripting.MakeRequest(context.Background(), "/", reg)
	require.NoError(t, err)

	env, err := scripting.Prepare(context.Background(), scripting.Options{Request: req, Registries: regs})
	require.NoError(t, err)
	defer env.Close()

	assert.Same(t, reg, env.Registry)
}

// TestPrepare_LastLoadedFallback verifies the most recently published
// application is used when nothing else is given.
func TestPrepare_LastLoadedFallback(t *testing.T) {
	t.Parallel()

	regs := traverse.NewRegistries()
	first := traverse.NewApp("first")
	second := traverse.NewApp("second")
	first.Publish(regs)
	second.Publish(regs)

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registries: regs})
	require.NoError(t, err)
	defer env.Close()

	assert.Same(t, second.Registry(), env.Registry)
}

//
// -----------------------------------------------------------------------------
// Prepare: request setup
// -----------------------------------------------------------------------------

// TestPrepare_RootFactory verifies a registered root factory is used and
// reported in the environment.
func TestPrepare_RootFactory(t *testing.T) {
	t.Parallel()

	type site struct{ Path string }
	app := traverse.NewApp("app")
	app.SetRootFactory(func(req *traverse.Request) (any, error) {
		return &site{Path: req.URL.Path}, nil
	})

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: app.Registry()})
	require.NoError(t, err)
	defer env.Close()

	require.IsType(t, &site{}, env.Root)
	assert.Equal(t, "/", env.Root.(*site).Path)

	root, err := env.RootFactory(env.Request)
	require.NoError(t, err)
	assert.Equal(t, env.Root, root)
}

// TestPrepare_KeepsExistingResource verifies the root does not replace a
// resource the request already carries.
func TestPrepare_KeepsExistingResource(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	req, err := scripting.MakeRequest(context.Background(), "/", reg)
	require.NoError(t, err)
	req.Resource = "already set"

	env, err := scripting.Prepare(context.Background(), scripting.Options{Request: req})
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, "already set", req.Resource)
	assert.IsType(t, &traverse.DefaultRoot{}, env.Root)
}

// TestPrepare_RootFactoryError verifies a failing root factory leaves the
// stack as it found it.
func TestPrepare_RootFactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	app := traverse.NewApp("app")
	app.SetRootFactory(func(*traverse.Request) (any, error) { return nil, boom })

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: app.Registry()})
	require.Error(t, err)
	assert.Nil(t, env)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, app.Stack().Len())
}

// TestPrepare_FinishedCallbacks verifies finished callbacks run once when
// the environment closes, before the frame is popped.
func TestPrepare_FinishedCallbacks(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)

	var calls, depth int
	env.Request.AddFinishedCallback(func(*traverse.Request) {
		calls++
		depth = reg.Stack().Len()
	})

	env.Closer()
	env.Closer()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, depth)
	assert.Equal(t, 0, env.Request.FinishedCallbacks())
}

// TestPrepare_AppliesRequestExtensions verifies registered methods and
// properties are available on the prepared request.
func TestPrepare_AppliesRequestExtensions(t *testing.T) {
	t.Parallel()

	app := traverse.NewApp("app")
	app.SetSettings(traverse.Settings{"greeting": "hi"})
	app.AddRequestMethod("greet", func(req *traverse.Request, args ...any) (any, error) {
		return req.Registry.Settings().String("greeting") + " " + args[0].(string), nil
	})
	app.AddRequestProperty("path", func(req *traverse.Request) any { return req.URL.Path }, true)

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: app.Registry()})
	require.NoError(t, err)
	defer env.Close()

	got, err := env.Request.Call("greet", "bob")
	require.NoError(t, err)
	assert.Equal(t, "hi bob", got)

	path, ok := env.Request.Property("path")
	require.True(t, ok)
	assert.Equal(t, "/", path)
}

// TestPrepare_RequestFactory verifies the registry's request factory
// builds the default request.
func TestPrepare_RequestFactory(t *testing.T) {
	t.Parallel()

	app := traverse.NewApp("app")
	app.SetRequestFactory(traverse.RequestFactoryFunc(func(r *http.Request) (*traverse.Request, error) {
		r.Header.Set("X-Script", "1")
		return traverse.NewRequest(r), nil
	}))

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: app.Registry()})
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, "1", env.Request.Header.Get("X-Script"))
}

// TestPrepare_ExplicitStack verifies the frame goes to the given stack.
func TestPrepare_ExplicitStack(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	stack := traverse.NewContextStack()

	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg, Stack: stack})
	require.NoError(t, err)

	assert.Same(t, stack, env.Stack)
	assert.Equal(t, 1, stack.Len())
	assert.Equal(t, 0, reg.Stack().Len())

	env.Close()
	assert.Equal(t, 0, stack.Len())
}

//
// -----------------------------------------------------------------------------
// Env
// -----------------------------------------------------------------------------

// TestEnv_Get verifies dictionary-style access to the environment.
func TestEnv_Get(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)
	defer env.Close()

	for _, key := range env.Keys() {
		v, ok := env.Get(key)
		assert.True(t, ok, key)
		assert.NotNil(t, v, key)
	}

	v, _ := env.Get(scripting.KeyRegistry)
	assert.Same(t, reg, v)
	v, _ = env.Get(scripting.KeyRequest)
	assert.Same(t, env.Request, v)

	_, ok := env.Get("missing")
	assert.False(t, ok)
}

// TestEnv_Context verifies the request travels on the returned context.
func TestEnv_Context(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: reg})
	require.NoError(t, err)
	defer env.Close()

	req, ok := traverse.RequestFrom(env.Context(context.Background()))
	require.True(t, ok)
	assert.Same(t, env.Request, req)
}

// TestEnv_Services verifies URL generation and rendering through the
// prepared request.
func TestEnv_Services(t *testing.T) {
	t.Parallel()

	app := newApp(t)
	env, err := scripting.Prepare(context.Background(), scripting.Options{Registry: app.Registry()})
	require.NoError(t, err)
	defer env.Close()

	url, err := env.Request.RouteURL("post", map[string]string{"id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/posts/7", url)

	path, err := env.Request.RoutePath("home", nil)
	require.NoError(t, err)
	assert.Equal(t, "/", path)

	html, err := env.Request.RenderToString("post.html", map[string]string{"Title": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1>", html)
}

//
// -----------------------------------------------------------------------------
// With
// -----------------------------------------------------------------------------

// TestWith_ClosesOnReturn verifies fn receives the environment and the
// frame is popped afterwards.
func TestWith_ClosesOnReturn(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	var seen *scripting.Env
	closed := 0

	err := scripting.With(context.Background(), scripting.Options{Registry: reg}, func(env *scripting.Env) error {
		seen = env
		env.Request.AddFinishedCallback(func(*traverse.Request) { closed++ })
		assert.Equal(t, 1, reg.Stack().Len())
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, reg.Stack().Len())
}

// TestWith_ReturnsFnError verifies fn's error is returned after closing.
func TestWith_ReturnsFnError(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	boom := errors.New("boom")

	err := scripting.With(context.Background(), scripting.Options{Registry: reg}, func(*scripting.Env) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, reg.Stack().Len())
}

// TestWith_ClosesOnPanic verifies the frame is popped when fn panics.
func TestWith_ClosesOnPanic(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	assert.Panics(t, func() {
		_ = scripting.With(context.Background(), scripting.Options{Registry: reg}, func(*scripting.Env) error {
			panic("script failed")
		})
	})
	assert.Equal(t, 0, reg.Stack().Len())
}

// TestWith_NoApplication verifies fn is not called when Prepare fails.
func TestWith_NoApplication(t *testing.T) {
	t.Parallel()

	called := false
	err := scripting.With(context.Background(), scripting.Options{}, func(*scripting.Env) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, traverse.ErrNoApplication)
	assert.False(t, called)
}

//
// -----------------------------------------------------------------------------
// GetRoot / MakeRequest
// -----------------------------------------------------------------------------

// TestGetRoot verifies the root is computed and the closer pops the frame.
func TestGetRoot(t *testing.T) {
	t.Parallel()

	app := newApp(t)
	root, closer, err := scripting.GetRoot(context.Background(), app, nil)
	require.NoError(t, err)
	assert.IsType(t, &traverse.DefaultRoot{}, root)

	req := app.Stack().CurrentRequest()
	require.NotNil(t, req)
	assert.Equal(t, "/", req.URL.Path)
	assert.Same(t, app.Registry(), req.Registry)

	closer()
	closer()
	assert.Equal(t, 0, app.Stack().Len())
}

// TestGetRoot_SuppliedRequest verifies a supplied request is rebound to the
// app registry.
func TestGetRoot_SuppliedRequest(t *testing.T) {
	t.Parallel()

	app := newApp(t)
	req, err := scripting.MakeRequest(context.Background(), "/posts/1", traverse.NewRegistry("other"))
	require.NoError(t, err)

	_, closer, err := scripting.GetRoot(context.Background(), app, req)
	require.NoError(t, err)
	defer closer()

	assert.Same(t, app.Registry(), req.Registry)
	assert.Same(t, req, app.Stack().CurrentRequest())
}

// TestGetRoot_Error verifies the frame is popped when the root fails.
func TestGetRoot_Error(t *testing.T) {
	t.Parallel()

	app := newApp(t)
	app.SetRootFactory(func(*traverse.Request) (any, error) { return nil, errors.New("no root") })

	_, closer, err := scripting.GetRoot(context.Background(), app, nil)
	require.Error(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, 0, app.Stack().Len())
}

// TestMakeRequest verifies path and query handling of blank requests.
func TestMakeRequest(t *testing.T) {
	t.Parallel()

	reg := traverse.NewRegistry("app")
	req, err := scripting.MakeRequest(context.Background(), "posts?page=2", reg)
	require.NoError(t, err)

	assert.Same(t, reg, req.Registry)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/posts", req.URL.Path)
	assert.Equal(t, "2", req.URL.Query().Get("page"))
}

// TestMakeRequest_NoRegistry verifies a nil registry is a configuration error.
func TestMakeRequest_NoRegistry(t *testing.T) {
	t.Parallel()

	_, err := scripting.MakeRequest(context.Background(), "/", nil)
	assert.ErrorIs(t, err, traverse.ErrNoApplication)
}
