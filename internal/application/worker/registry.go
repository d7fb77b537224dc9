package worker

import "github.com/aescanero/patchwork/pkg/module"

// handle refers to a registry slot. A handle is valid only while the slot
// holds the same generation it was issued for.
type handle struct {
	index int
	gen   uint64
}

type slot struct {
	mod  module.Module
	role module.Role
	gen  uint64
	live bool
}

// registry is an arena of monitored components. It is owned by the monitor
// goroutine and never shared.
type registry struct {
	slots []slot
	free  []int
}

func newRegistry() *registry {
	return &registry{}
}

// add stores a component and returns its handle, reusing released slots
func (r *registry) add(role module.Role, m module.Module) handle {
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]

		s := &r.slots[idx]
		s.gen++
		s.mod = m
		s.role = role
		s.live = true
		return handle{index: idx, gen: s.gen}
	}

	r.slots = append(r.slots, slot{mod: m, role: role, gen: 1, live: true})
	return handle{index: len(r.slots) - 1, gen: 1}
}

// get returns the component for a handle, or false if it is gone
func (r *registry) get(h handle) (module.Module, module.Role, bool) {
	if h.index < 0 || h.index >= len(r.slots) {
		return nil, "", false
	}

	s := r.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, "", false
	}
	return s.mod, s.role, true
}

// release drops a component; outstanding handles become invalid
func (r *registry) release(h handle) {
	if _, _, ok := r.get(h); !ok {
		return
	}

	s := &r.slots[h.index]
	s.mod = nil
	s.live = false
	r.free = append(r.free, h.index)
}

// len returns the number of live components
func (r *registry) len() int {
	return len(r.slots) - len(r.free)
}
