package traverse

import (
	"context"
	"sync"
)

// RequestContext makes a request current on a ContextStack between Begin
// and End.
type RequestContext struct {
	stack   *ContextStack
	request *Request

	mu     sync.Mutex
	active bool
}

// NewRequestContext prepares a context for req on stack. A nil stack means
// the stack of the request's registry.
func NewRequestContext(stack *ContextStack, req *Request) *RequestContext {
	if stack == nil && req.Registry != nil {
		stack = req.Registry.Stack()
	}
	if stack == nil {
		stack = NewContextStack()
	}
	return &RequestContext{stack: stack, request: req}
}

// Begin pushes the request and its registry and returns the request.
func (c *RequestContext) Begin() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack.Push(Frame{Request: c.request, Registry: c.request.Registry})
	c.active = true
	return c.request
}

// End removes the frame pushed by Begin, even when other frames were
// pushed on top of it since. Calling End without an active Begin does
// nothing.
func (c *RequestContext) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.stack.Remove(c.request)
	c.active = false
}

// Stack returns the stack the context pushes onto.
func (c *RequestContext) Stack() *ContextStack { return c.stack }

type requestKey struct{}

// WithRequest returns a copy of ctx carrying req.
func WithRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFrom returns the request stored on ctx by WithRequest.
func RequestFrom(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(requestKey{}).(*Request)
	return req, ok && req != nil
}
