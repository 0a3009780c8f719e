package traverse

import "sync"

// Registries records the registries of applications that finished setup,
// in the order they were published. Scripts fall back to the most recent
// one when they are not handed a registry explicitly.
type Registries struct {
	mu   sync.Mutex
	regs []*Registry
}

// NewRegistries returns an empty list.
func NewRegistries() *Registries {
	return &Registries{}
}

// Add records reg as the most recently loaded registry. Adding a registry
// that is already present moves it to the end.
func (rs *Registries) Add(reg *Registry) {
	if reg == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.remove(reg)
	rs.regs = append(rs.regs, reg)
}

// Remove forgets reg and reports whether it was present.
func (rs *Registries) Remove(reg *Registry) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.remove(reg)
}

func (rs *Registries) remove(reg *Registry) bool {
	for i, r := range rs.regs {
		if r == reg {
			rs.regs = append(rs.regs[:i], rs.regs[i+1:]...)
			return true
		}
	}
	return false
}

// Last returns the most recently added registry, or nil.
func (rs *Registries) Last() *Registry {
	if rs == nil {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.regs) == 0 {
		return nil
	}
	return rs.regs[len(rs.regs)-1]
}

// All returns the recorded registries, oldest first.
func (rs *Registries) All() []*Registry {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*Registry, len(rs.regs))
	copy(out, rs.regs)
	return out
}
