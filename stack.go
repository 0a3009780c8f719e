package traverse

import "sync"

// Frame is one entry on a ContextStack: the request and registry that are
// current while the frame is on top.
type Frame struct {
	Request  *Request
	Registry *Registry
}

// ContextStack records the currently active request/registry pairs of
// scripting sessions. Sessions that nest push and pop in order; sessions
// that overlap remove their own frame with Remove.
//
// The HTTP pipeline does not use the stack; it carries the request on the
// context.Context (see WithRequest).
type ContextStack struct {
	mu     sync.Mutex
	frames []Frame
}

// NewContextStack returns an empty stack.
func NewContextStack() *ContextStack {
	return &ContextStack{}
}

// Push makes f the current frame.
func (s *ContextStack) Push(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

// Pop removes and returns the current frame.
func (s *ContextStack) Pop() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	f := s.frames[len(s.frames)-1]
	s.frames[len(s.frames)-1] = Frame{}
	s.frames = s.frames[:len(s.frames)-1]
	return f, true
}

// Top returns the current frame without removing it.
func (s *ContextStack) Top() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Remove deletes the topmost frame holding req and reports whether one was
// found. Frames above it stay in place.
func (s *ContextStack) Remove(req *Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Request != req {
			continue
		}
		copy(s.frames[i:], s.frames[i+1:])
		s.frames[len(s.frames)-1] = Frame{}
		s.frames = s.frames[:len(s.frames)-1]
		return true
	}
	return false
}

// Len returns the number of frames on the stack.
func (s *ContextStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// CurrentRequest returns the request of the current frame, or nil.
func (s *ContextStack) CurrentRequest() *Request {
	f, _ := s.Top()
	return f.Request
}

// CurrentRegistry returns the registry of the current frame, or nil.
func (s *ContextStack) CurrentRegistry() *Registry {
	f, _ := s.Top()
	return f.Registry
}
