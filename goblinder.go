// Package goblinder is an in-process, Go-native re-implementation of the
// Android Binder IPC kernel driver: a Runtime hosts one or more named
// Contexts, each Context hosts Processes, and Processes exchange
// transactions through Nodes and handles exactly as binder(4) describes,
// without requiring a real /dev/binder character device or root.
package goblinder

import (
	"context"
	"fmt"

	"github.com/goblinder/goblinder/internal/binder"
	"github.com/goblinder/goblinder/internal/logging"
)

// ProcessConfig configures a Process joining a Context.
type ProcessConfig struct {
	// ArenaSize is the size in bytes of the process's mmap'd BufferArena,
	// the pool transaction payloads are copied into.
	ArenaSize uintptr

	// MaxThreads bounds how many looper threads the process may register,
	// answering BINDER_SET_MAX_THREADS.
	MaxThreads uint32
}

// DefaultProcessConfig returns sensible defaults: a 1 MiB arena and an
// 8-thread pool, matching typical Android system service configuration.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		ArenaSize:  1 << 20,
		MaxThreads: 8,
	}
}

// Runtime is the top-level handle to a set of Binder contexts. A process
// normally creates exactly one Runtime; tests may create several to get
// fully isolated Contexts.
type Runtime struct {
	registry *binder.Registry
	logger   *logging.Logger
	observer Observer
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithLogger overrides the Runtime's logger (defaults to logging.Default()).
func WithLogger(l *logging.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithObserver overrides the Runtime's metrics Observer (defaults to
// NoOpObserver{}).
func WithObserver(o Observer) Option {
	return func(r *Runtime) { r.observer = o }
}

// NewRuntime constructs a Runtime with an empty context registry.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		registry: binder.NewRegistry(),
		logger:   logging.Default(),
		observer: NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Context is a handle to one named Binder context, e.g. the system's
// ContextRegistry's default "binder" context or an isolated test context.
type Context struct {
	rt  *Runtime
	ctx *binder.Context
}

// OpenContext returns the named Context, creating it on first use. Every
// call with the same name on the same Runtime returns a handle to the same
// underlying Context, so processes opened against it can see each other.
func (r *Runtime) OpenContext(name string) *Context {
	return &Context{rt: r, ctx: r.registry.GetOrCreate(name)}
}

// Name returns the context's name.
func (c *Context) Name() string { return c.ctx.Name }

// NumProcesses reports how many processes currently hold a Process handle
// against this context.
func (c *Context) NumProcesses() int {
	return len(c.ctx.Procs())
}

// Process is a handle to one client's connection to a Context: its thread
// pool, its BufferArena, and the nodes and handles it owns.
type Process struct {
	ctxHandle *Context
	proc      *binder.Process
	rt        *Runtime
}

// NewProcess joins cfg's Context as a new Process identified by pid/euid,
// analogous to opening /dev/binder and mmap'ing its BufferArena.
func (c *Context) NewProcess(pid int32, euid uint32, cfg ProcessConfig) (*Process, error) {
	p, err := binder.NewProcess(c.ctx, pid, euid, cfg.ArenaSize)
	if err != nil {
		return nil, fmt.Errorf("goblinder: new process pid=%d: %w", pid, err)
	}
	p.SetMaxThreads(cfg.MaxThreads)
	c.rt.logger.Debug("process joined context", "pid", pid, "context", c.ctx.Name)
	return &Process{ctxHandle: c, proc: p, rt: c.rt}, nil
}

// PID returns the process's identifier within its Context.
func (p *Process) PID() int32 { return p.proc.PID }

// Arena exposes the process's BufferArena utilization for diagnostics.
func (p *Process) Arena() (inUse, total uint64) {
	a := p.proc.Arena()
	return uint64(a.InUse()), uint64(a.Size())
}

// SetAsManager designates this process as its Context's manager (handle 0),
// answering BINDER_SET_CONTEXT_MGR_EXT.
func (p *Process) SetAsManager(ptr, cookie uint64, flags uint32) error {
	return p.proc.SetAsManager(ptr, cookie, flags)
}

// Thread is a handle to one dispatch thread within a Process.
type Thread struct {
	proc   *Process
	thread *binder.Thread
}

// NewThread registers a new dispatch thread under tid, entering looper mode
// immediately (BC_ENTER_LOOPER), matching how the first thread of a process
// joins the pool without an outstanding spawn request.
func (p *Process) NewThread(tid int32) *Thread {
	t := binder.NewThread(p.proc, tid)
	t.EnterLooper()
	return &Thread{proc: p, thread: t}
}

// NewLooperThread registers tid as a thread spawned in response to
// BR_SPAWN_LOOPER, consuming one outstanding request (BC_REGISTER_LOOPER).
// It reports false if no spawn request was outstanding.
func (p *Process) NewLooperThread(tid int32) (*Thread, bool) {
	t := binder.NewThread(p.proc, tid)
	ok := t.RegisterLooper()
	return &Thread{proc: p, thread: t}, ok
}

// TID returns the thread's identifier.
func (t *Thread) TID() int32 { return t.thread.TID }

// Transact submits a transaction from this thread to the node behind
// handle (0 meaning the context manager), copying data/offsets into the
// target's BufferArena. For a synchronous call the caller should follow
// with Read to receive the eventual reply.
func (t *Thread) Transact(handle uint32, code, flags uint32, data, offsets []byte) error {
	_, err := t.proc.proc.Transact(t.thread, handle, code, flags, data, offsets)
	oneway := flags&0x01 != 0
	t.proc.rt.observer.ObserveTransaction(uint64(len(data)+len(offsets)), oneway, err == nil)
	if inUse, total := t.proc.Arena(); total > 0 {
		t.proc.rt.observer.ObserveArenaUsage(inUse, total)
	}
	return err
}

// Reply submits a BC_REPLY completing the transaction currently on top of
// this thread's stack.
func (t *Thread) Reply(code, flags uint32, data, offsets []byte) error {
	err := t.proc.proc.Reply(t.thread, code, flags, data, offsets)
	if inUse, total := t.proc.Arena(); total > 0 {
		t.proc.rt.observer.ObserveArenaUsage(inUse, total)
	}
	return err
}

// FreeBuffer releases a payload range previously delivered to this
// thread's process, answering BC_FREE_BUFFER.
func (t *Thread) FreeBuffer(offset uintptr) error {
	return t.proc.proc.FreeBuffer(offset)
}

// Read blocks until the next WorkItem is ready for this thread, matching
// the dispatch loop of binder_thread_read: the caller is expected to call
// this in a loop from its own goroutine for as long as it wants to keep
// looping.
func (t *Thread) Read(ctx context.Context) (WorkItem, error) {
	w, err := t.thread.Read(ctx)
	if err != nil {
		return nil, err
	}
	switch ev := w.(type) {
	case binder.NodeEvent:
		k := ev.Kind()
		strong := k == binder.NodeWorkAcquire || k == binder.NodeWorkRelease
		inc := k == binder.NodeWorkIncRefs || k == binder.NodeWorkAcquire
		t.proc.rt.observer.ObserveRefcountChange(strong, inc)
	case binder.DeathEvent:
		if !ev.Cleared() {
			t.proc.rt.observer.ObserveDeath()
		}
	}
	return WorkItem{inner: w}, nil
}

// ExitLooper processes BC_EXIT_LOOPER / BC_THREAD_EXIT for this thread.
func (t *Thread) ExitLooper() { t.thread.ExitLooper() }

// GetNodeFromHandle resolves handle to a reference of the requested
// strength, used to answer BC_INCREFS/BC_ACQUIRE-style requests issued
// against a remote node this process already knows about.
func (p *Process) GetNodeFromHandle(handle uint32, strong bool) error {
	_, err := p.proc.GetNodeFromHandle(handle, strong)
	return err
}

// UpdateRef applies a BC_INCREFS/BC_ACQUIRE/BC_RELEASE/BC_DECREFS to handle.
func (p *Process) UpdateRef(handle uint32, inc, strong bool) error {
	return p.proc.UpdateRef(handle, inc, strong)
}

// RequestDeathNotification registers for notification when the node behind
// handle's owning process dies, answering BC_REQUEST_DEATH_NOTIFICATION.
func (p *Process) RequestDeathNotification(handle uint32, cookie uint64) error {
	_, err := p.proc.RequestDeathNotification(handle, cookie)
	return err
}

// ClearDeathNotification answers BC_CLEAR_DEATH_NOTIFICATION.
func (p *Process) ClearDeathNotification(handle uint32) error {
	return p.proc.ClearDeathNotification(handle)
}

// IncRefDone answers BC_INCREFS_DONE/BC_ACQUIRE_DONE for the node at ptr,
// acknowledging a BR_INCREFS/BR_ACQUIRE this process was told to deliver.
func (p *Process) IncRefDone(ptr uint64, strong bool) error {
	return p.proc.IncRefDone(ptr, strong)
}

// DeadBinderDone answers BC_DEAD_BINDER_DONE, completing the handshake for
// a previously delivered BR_DEAD_BINDER with the given cookie.
func (p *Process) DeadBinderDone(cookie uint64) error {
	return p.proc.DeadBinderDone(cookie)
}

// Close tears the process down: every thread blocked in Read is woken with
// a dead-process error, queued transactions are cancelled, and registered
// death notifications fire across the context.
func (p *Process) Close() {
	p.proc.MarkDead()
	p.rt.logger.Debug("process left context", "pid", p.proc.PID, "context", p.ctxHandle.ctx.Name)
}
