package binder

import (
	"context"
	"sync"
)

// looperState tracks a thread's registration with BC_ENTER_LOOPER /
// BC_REGISTER_LOOPER, mirroring the flags the reference driver keeps on
// binder_thread.looper.
type looperState int

const (
	looperNone looperState = iota
	looperRegistered
	looperEntered
	looperExited
)

// Thread is one calling thread's binder dispatch context: its own direct
// work queue (used when it is already part of a transaction stack) and a
// channel used to wake it when something is pushed directly to it rather
// than to its process's shared queue. Grounded on the reference driver's
// binder_thread, re-expressed with a channel instead of a wait-queue since
// Go has no equivalent of wake_up_interruptible.
type Thread struct {
	Process *Process
	TID     int32

	mu      sync.Mutex
	looper  looperState
	stack   *Transaction // top of this thread's transaction stack, nil if idle
	direct  []WorkItem   // work pushed directly to this thread ahead of its stack

	wake chan struct{}
	done chan struct{}
}

// NewThread constructs a Thread for tid within proc and registers it.
func NewThread(proc *Process, tid int32) *Thread {
	t := &Thread{
		Process: proc,
		TID:     tid,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	proc.AddThread(t)
	return t
}

// EnterLooper processes BC_ENTER_LOOPER.
func (t *Thread) EnterLooper() {
	t.mu.Lock()
	t.looper = looperEntered
	t.mu.Unlock()
}

// RegisterLooper processes BC_REGISTER_LOOPER, consuming one outstanding
// spawn request from the process.
func (t *Thread) RegisterLooper() bool {
	t.mu.Lock()
	t.looper = looperRegistered
	t.mu.Unlock()
	return t.Process.RegisterThreadStart()
}

// ExitLooper processes BC_THREAD_EXIT / BC_EXIT_LOOPER.
func (t *Thread) ExitLooper() {
	t.mu.Lock()
	t.looper = looperExited
	t.mu.Unlock()
}

// IsLooper reports whether this thread currently participates in the
// thread pool (entered or registered), used to decide whether a
// notification may be delivered to it directly.
func (t *Thread) IsLooper() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.looper == looperEntered || t.looper == looperRegistered
}

// pushNewTransaction attempts to hand a brand-new transaction directly to
// this (presumed idle) thread. It returns false (without error) if the
// thread turned out not to be idle after all, so the caller can put it
// back on the ready list and fall through to the process queue instead.
func (t *Thread) pushNewTransaction(tr *Transaction) (bool, error) {
	t.mu.Lock()
	if t.stack != nil {
		t.mu.Unlock()
		return false, nil
	}
	t.stack = tr
	t.direct = append(t.direct, tr)
	t.mu.Unlock()
	t.signal()
	return true, nil
}

// pushWork hands a work item directly to this thread, used both for
// generic notifications and for transactions addressed to a thread already
// in the caller's stack.
func (t *Thread) pushWork(w WorkItem) (bool, error) {
	t.mu.Lock()
	t.direct = append(t.direct, w)
	if tr, ok := w.(*Transaction); ok {
		t.stack = tr
	}
	t.mu.Unlock()
	t.signal()
	return true, nil
}

func (t *Thread) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// pushWorkIfLooper delivers w to this thread only if it is currently
// registered as a looper, otherwise falling back to the process queue; used
// for BR_CLEAR_DEATH_NOTIFICATION_DONE delivery (node.rs's
// push_work_if_looper).
func (t *Thread) pushWorkIfLooper(w WorkItem) error {
	if t.IsLooper() {
		_, err := t.pushWork(w)
		return err
	}
	return t.Process.pushWork(w)
}

// popDirect returns the next directly queued work item for this thread, if
// any, without blocking.
func (t *Thread) popDirect() WorkItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.direct) == 0 {
		return nil
	}
	w := t.direct[0]
	t.direct = t.direct[1:]
	return w
}

// Read blocks until a work item is available for this thread: first its
// own direct queue, then the process-wide queue (registering as ready and
// waiting on a wakeup if neither has anything), matching the reference
// binder_thread_read dispatch order. A nodeWork or deathWork item is
// resolved against its current state immediately before being returned,
// not when it was originally queued; an item that resolves to nothing
// worth telling userspace about (e.g. an aborted death notification) is
// silently dropped and the wait continues.
func (t *Thread) Read(ctx context.Context) (WorkItem, error) {
	for {
		w, err := t.nextRaw(ctx)
		if err != nil {
			return nil, err
		}
		if resolved, ok := t.resolveForDelivery(w); ok {
			return resolved, nil
		}
	}
}

func (t *Thread) nextRaw(ctx context.Context) (WorkItem, error) {
	if w := t.popDirect(); w != nil {
		return w, nil
	}
	if w := t.Process.GetWork(); w != nil {
		return w, nil
	}
	for {
		if w := t.Process.RegisterReady(t); w != nil {
			return w, nil
		}
		select {
		case <-t.wake:
			t.Process.Unregister(t)
			if w := t.popDirect(); w != nil {
				return w, nil
			}
			continue
		case <-t.done:
			return nil, &Error{Op: "Read", PID: t.Process.PID, Code: ErrCodeDead}
		case <-ctx.Done():
			t.Process.Unregister(t)
			return nil, ctx.Err()
		}
	}
}

// resolveForDelivery finishes deciding what a nodeWork or deathWork item
// actually means right before it reaches userspace. It returns ok=false
// when the item turned out not to need delivery at all, telling Read to
// go back and wait for the next one instead.
func (t *Thread) resolveForDelivery(w WorkItem) (WorkItem, bool) {
	switch item := w.(type) {
	case *nodeWork:
		if item.resolved {
			return item, true
		}
		owner := item.node.Owner
		owner.innerMu.Lock()
		kinds := owner.resolveNodeWorkLocked(item.node)
		owner.innerMu.Unlock()
		if len(kinds) == 0 {
			return nil, false
		}
		for _, k := range kinds[1:] {
			_, _ = t.pushWork(&nodeWork{node: item.node, kind: k, resolved: true})
		}
		item.kind = kinds[0]
		item.resolved = true
		return item, true
	case *deathWork:
		if item.resolved {
			return item, true
		}
		cleared, drop := item.death.resolveDelivery()
		if drop {
			return nil, false
		}
		item.cleared = cleared
		item.resolved = true
		if !cleared {
			t.Process.DeathDelivered(item.death)
		}
		return item, true
	default:
		return w, true
	}
}

// FinishStacked pops the current top of this thread's transaction stack
// once its reply (or, for a dead end, a cancellation) has been delivered,
// exposing the next one down for the caller to resume waiting on.
func (t *Thread) FinishStacked() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stack != nil {
		t.stack = t.stack.StackNext
	}
}

// Stack returns the transaction currently on top of this thread's stack,
// or nil if it is not part of one.
func (t *Thread) Stack() *Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stack
}

// Shutdown wakes a thread blocked in Read with a permanent dead-process
// error, used when the owning Process is marked dead.
func (t *Thread) Shutdown() {
	t.mu.Lock()
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.mu.Unlock()
}
