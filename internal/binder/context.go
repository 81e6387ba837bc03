package binder

import (
	"sync"

	"github.com/google/uuid"
)

// Context is a named binder domain: a set of Processes that can transact
// with each other and, optionally, a single process designated as the
// context manager (handle 0 for every other process in the context).
// Grounded on context.rs's Context/Manager.
type Context struct {
	Name string
	ID   uuid.UUID

	mu      sync.Mutex
	manager *NodeRef // nil until BINDER_SET_CONTEXT_MGR(_EXT)
	procs   []*Process

	// managerEUIDSet/managerEUID persist across an UnsetManagerNode: once a
	// manager has registered under a given euid, only that same euid may
	// ever register again, even after the slot is vacated by death.
	// Mirrors context.rs's Context::binder_context_mgr_uid.
	managerEUIDSet bool
	managerEUID    uint32
}

// NewContext creates a named context, assigning it a fresh random instance
// id in ID. The id is informational only: contexts are looked up by Name.
func NewContext(name string) *Context {
	return &Context{Name: name, ID: uuid.New()}
}

// Registry holds every live Context, mirroring context.rs's global
// CONTEXTS list. Unlike the kernel, which has exactly one process-wide
// list, the Registry is explicit state so tests can run multiple
// independent binder domains in one process.
type Registry struct {
	mu       sync.Mutex
	byName   map[string]*Context
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Context)}
}

// GetOrCreate returns the named Context, creating it if this is the first
// reference (mirrors a device node being opened for the first time).
func (r *Registry) GetOrCreate(name string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.byName[name]; ok {
		return ctx
	}
	ctx := NewContext(name)
	r.byName[name] = ctx
	return ctx
}

// Get returns the named Context, or nil if it has never been created.
func (r *Registry) Get(name string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[name]
}

// registerProcess adds proc to the context's process list.
func (c *Context) registerProcess(p *Process) {
	c.mu.Lock()
	c.procs = append(c.procs, p)
	c.mu.Unlock()
}

// deregisterProcess removes proc from the context's process list.
func (c *Context) deregisterProcess(p *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cur := range c.procs {
		if cur == p {
			c.procs = append(c.procs[:i], c.procs[i+1:]...)
			return
		}
	}
}

// SetManagerNode designates proc's node as the context manager via ref,
// failing with ErrCodeNotManager if one is already set. If a manager
// previously registered under a different euid (even one since cleared by
// UnsetManagerNode), euid must match it or the call fails with
// ErrCodeNotPermitted: only the original manager's user may ever reclaim
// the role. Mirrors context.rs's set_manager_node.
func (c *Context) SetManagerNode(ref *NodeRef, euid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager != nil {
		return &Error{Op: "SetManagerNode", Code: ErrCodeNotManager}
	}
	if c.managerEUIDSet && c.managerEUID != euid {
		return &Error{Op: "SetManagerNode", Code: ErrCodeNotPermitted}
	}
	c.manager = ref
	c.managerEUID = euid
	c.managerEUIDSet = true
	return nil
}

// UnsetManagerNode clears the registered manager node if owner is the
// process that holds it, used when that process dies. The recorded
// managing euid is left untouched so a later SetManagerNode from a
// different user is still rejected.
func (c *Context) UnsetManagerNode(owner *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manager != nil && c.manager.Node.Owner == owner {
		c.manager = nil
	}
}

// GetManagerNode returns a fresh reference (of the requested strength) to
// the context manager's node, failing with ErrCodeNoSuchHandle if none is
// registered.
func (c *Context) GetManagerNode(strong bool) (*NodeRef, error) {
	c.mu.Lock()
	manager := c.manager
	c.mu.Unlock()
	if manager == nil {
		return nil, &Error{Op: "GetManagerNode", Code: ErrCodeNoSuchHandle}
	}
	return manager.Clone(strong)
}

// ForEachProc calls fn for every process currently registered in the
// context.
func (c *Context) ForEachProc(fn func(*Process)) {
	c.mu.Lock()
	procs := make([]*Process, len(c.procs))
	copy(procs, c.procs)
	c.mu.Unlock()
	for _, p := range procs {
		fn(p)
	}
}

// Procs returns a snapshot of the currently registered processes.
func (c *Context) Procs() []*Process {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Process, len(c.procs))
	copy(out, c.procs)
	return out
}
