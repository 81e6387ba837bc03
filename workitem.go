package goblinder

import (
	"github.com/goblinder/goblinder/internal/binder"
)

// WorkItemKind classifies a WorkItem for a dispatch loop's type switch,
// mirroring the BR_* codes a real binder_thread_read would have written.
type WorkItemKind int

const (
	// KindTransaction is a new incoming call (BR_TRANSACTION) or a reply
	// to one this thread sent (BR_REPLY). Call Transaction to inspect it.
	KindTransaction WorkItemKind = iota
	// KindTransactionComplete acknowledges a transaction this thread just
	// submitted (BR_TRANSACTION_COMPLETE).
	KindTransactionComplete
	// KindError reports a synchronous failure (BR_FAILED_REPLY/BR_DEAD_REPLY).
	KindError
	// KindNodeEvent is a refcount notification (BR_INCREFS/BR_ACQUIRE/
	// BR_RELEASE/BR_DECREFS). Call NodeEvent to inspect it.
	KindNodeEvent
	// KindSpawnLooper asks the process to start one more thread (BR_SPAWN_LOOPER).
	KindSpawnLooper
	// KindDeath is a death notification delivery (BR_DEAD_BINDER) or
	// clear acknowledgment (BR_CLEAR_DEATH_NOTIFICATION_DONE). Call
	// DeathEvent to inspect it.
	KindDeath
)

// WorkItem wraps one item handed back by Thread.Read, exposing its kind and
// typed accessors without leaking the internal dispatch package.
type WorkItem struct {
	inner binder.WorkItem
}

// Kind classifies the wrapped item.
func (w WorkItem) Kind() WorkItemKind {
	switch {
	case binder.IsTransactionComplete(w.inner):
		return KindTransactionComplete
	case binder.IsSpawnLooper(w.inner):
		return KindSpawnLooper
	}
	switch w.inner.(type) {
	case binder.ErrorEvent:
		return KindError
	case binder.NodeEvent:
		return KindNodeEvent
	case binder.DeathEvent:
		return KindDeath
	default:
		return KindTransaction
	}
}

// Transaction returns the wrapped *binder.Transaction and true if Kind is
// KindTransaction.
func (w WorkItem) Transaction() (*binder.Transaction, bool) {
	t, ok := w.inner.(*binder.Transaction)
	return t, ok
}

// Error returns the BR_* code and true if Kind is KindError.
func (w WorkItem) Error() (binder.ReturnCode, bool) {
	e, ok := w.inner.(binder.ErrorEvent)
	if !ok {
		return 0, false
	}
	return e.Code(), true
}

// NodeEvent returns the node and refcount kind if Kind is KindNodeEvent.
func (w WorkItem) NodeEvent() (*binder.Node, binder.NodeWorkKind, bool) {
	n, ok := w.inner.(binder.NodeEvent)
	if !ok {
		return nil, 0, false
	}
	return n.Node(), n.Kind(), true
}

// DeathEvent returns the death registration and whether it is a clear
// acknowledgment if Kind is KindDeath.
func (w WorkItem) DeathEvent() (*binder.NodeDeath, bool, bool) {
	d, ok := w.inner.(binder.DeathEvent)
	if !ok {
		return nil, false, false
	}
	return d.Death(), d.Cleared(), true
}
