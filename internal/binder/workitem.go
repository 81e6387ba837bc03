package binder

// WorkItem is anything that can sit on a Process's or Thread's work queue
// waiting to be delivered to userspace by a Read call. Concrete types are
// *Transaction, *nodeWork, *deathWork, returnErrorWork, and the
// transactionCompleteWork and spawnLooperWork markers below.
type WorkItem interface {
	// shouldSyncWakeup reports whether queuing this item should prefer
	// waking a thread that is blocked waiting for work over one that is
	// merely polling, mirroring the reference scheduler's treatment of
	// synchronous (two-way) transactions.
	shouldSyncWakeup() bool
}

// transactionCompleteWork is queued back to the sender immediately after a
// transaction is successfully handed to its target, satisfying BC_TRANSACTION's
// BR_TRANSACTION_COMPLETE acknowledgment.
type transactionCompleteWork struct{}

func (transactionCompleteWork) shouldSyncWakeup() bool { return false }

// returnErrorWork reports a synchronous failure (e.g. the target process is
// dead) back to the caller as BR_FAILED_REPLY/BR_DEAD_REPLY.
type returnErrorWork struct {
	code ReturnCode
}

func (returnErrorWork) shouldSyncWakeup() bool { return false }

// Code exposes the BR_* code this error work item carries.
func (e returnErrorWork) Code() ReturnCode { return e.code }

// ReturnCode enumerates the BR_* codes a returnErrorWork can carry.
type ReturnCode int

const (
	ReturnFailedReply ReturnCode = iota
	ReturnDeadReply
)

// ErrorEvent is implemented by returnErrorWork, letting callers outside the
// package read the BR_* code without naming the unexported concrete type.
type ErrorEvent interface {
	WorkItem
	Code() ReturnCode
}

var _ ErrorEvent = returnErrorWork{}

// nodeWork notifies userspace of a Node refcount transition (BR_INCREFS,
// BR_ACQUIRE, BR_RELEASE, or BR_DECREFS), grounded on node.rs's
// DeliverToRead impl for Node. kind is not decided at enqueue time: it is
// left unresolved until the item is actually about to be handed to a
// reading thread, at which point Thread.Read resolves it under the node's
// owner lock and sets resolved so it is never recomputed again.
type nodeWork struct {
	node     *Node
	kind     nodeWorkKind
	resolved bool
}

type nodeWorkKind int

const (
	nodeWorkIncRefs nodeWorkKind = iota
	nodeWorkAcquire
	nodeWorkRelease
	nodeWorkDecRefs
)

func (n *nodeWork) shouldSyncWakeup() bool { return false }

// Node and Kind expose a refcount notification's target and flavor.
func (n *nodeWork) Node() *Node        { return n.node }
func (n *nodeWork) Kind() NodeWorkKind { return n.kind }

// NodeWorkKind is the exported alias of nodeWorkKind, returned by
// NodeEvent.Kind so callers outside the package can switch on it.
type NodeWorkKind = nodeWorkKind

const (
	NodeWorkIncRefs = nodeWorkIncRefs
	NodeWorkAcquire = nodeWorkAcquire
	NodeWorkRelease = nodeWorkRelease
	NodeWorkDecRefs = nodeWorkDecRefs
)

// NodeEvent is implemented by nodeWork, exposing a refcount notification
// without naming the unexported concrete type.
type NodeEvent interface {
	WorkItem
	Node() *Node
	Kind() NodeWorkKind
}

var _ NodeEvent = (*nodeWork)(nil)

// spawnLooperWork asks userspace (BR_SPAWN_LOOPER) to start one more
// thread in the process's pool because work is queued and every existing
// thread is busy.
type spawnLooperWork struct{}

func (spawnLooperWork) shouldSyncWakeup() bool { return false }

// deathWork notifies userspace that a registered death notification has
// fired (BR_DEAD_BINDER) or that a death registration/clear request has
// completed (BR_CLEAR_DEATH_NOTIFICATION_DONE). Like nodeWork, whether
// this delivers as cleared is resolved at delivery time rather than at
// enqueue time, so a clear that raced the death notification is reflected
// correctly (node.rs's DeliverToRead impl for NodeDeath).
type deathWork struct {
	death    *NodeDeath
	cleared  bool
	resolved bool
}

func (d *deathWork) shouldSyncWakeup() bool { return true }

// Death and Cleared expose a death notification's registration and whether
// this delivery is the BR_CLEAR_DEATH_NOTIFICATION_DONE acknowledgment
// rather than the BR_DEAD_BINDER event itself.
func (d *deathWork) Death() *NodeDeath { return d.death }
func (d *deathWork) Cleared() bool     { return d.cleared }

// DeathEvent is implemented by deathWork.
type DeathEvent interface {
	WorkItem
	Death() *NodeDeath
	Cleared() bool
}

var _ DeathEvent = (*deathWork)(nil)

// IsTransactionComplete reports whether w is the BR_TRANSACTION_COMPLETE
// marker queued back to a sender right after a successful Submit.
func IsTransactionComplete(w WorkItem) bool {
	_, ok := w.(transactionCompleteWork)
	return ok
}

// IsSpawnLooper reports whether w is a BR_SPAWN_LOOPER request.
func IsSpawnLooper(w WorkItem) bool {
	_, ok := w.(spawnLooperWork)
	return ok
}
