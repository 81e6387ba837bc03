package binder

import "sync"

// NodeDeath is a single death-notification registration: process asked to
// be told (via cookie) when node's owning process exits. State machine
// grounded on node.rs's NodeDeathInner: dead/cleared/notificationDone are
// set by three independent events (owner dies, BC_CLEAR_DEATH_NOTIFICATION,
// BC_DEAD_BINDER_DONE) that can arrive in any order, and aborted records
// whether BC_CLEAR_DEATH_NOTIFICATION raced the notification into
// irrelevance.
type NodeDeath struct {
	Node    *Node
	Process *Process
	Cookie  uint64

	mu                sync.Mutex
	dead              bool
	cleared           bool
	notificationDone  bool
	aborted           bool
}

// NewNodeDeath constructs a death registration. Callers must still add it
// to node's death list via Node.AddDeath.
func NewNodeDeath(node *Node, proc *Process, cookie uint64) *NodeDeath {
	return &NodeDeath{Node: node, Process: proc, Cookie: cookie}
}

// SetCleared marks the registration as cleared (BC_CLEAR_DEATH_NOTIFICATION)
// and reports whether a BR_CLEAR_DEATH_NOTIFICATION_DONE work item needs to
// be queued to the requesting process: only once the owner is confirmed
// not dead, or once the dead notification was already acknowledged
// (BC_DEAD_BINDER_DONE).
func (d *NodeDeath) SetCleared(abort bool) (needsQueueing bool) {
	d.mu.Lock()
	d.cleared = true
	if abort {
		d.aborted = true
	}
	needsQueueing = !d.dead || d.notificationDone
	notDead := !d.dead
	d.mu.Unlock()

	if notDead {
		d.Node.RemoveDeath(d)
	}
	return needsQueueing
}

// SetNotificationDone records a BC_DEAD_BINDER_DONE ack, reporting whether
// the deferred BR_CLEAR_DEATH_NOTIFICATION_DONE (held back by an earlier,
// not-yet-processed clear request) must now be queued.
func (d *NodeDeath) SetNotificationDone() (needsQueueing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notificationDone = true
	return d.cleared
}

// SetDead marks the owning process as dead, reporting whether a
// BR_DEAD_BINDER work item must be queued to the registering process. If
// the registration was already cleared before the owner died, no
// notification is sent at all.
func (d *NodeDeath) SetDead() (needsQueueing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cleared {
		return false
	}
	d.dead = true
	return true
}

// Aborted reports whether the registration was cleared with abort set.
// resolveDelivery drops a pending death work item for such a registration
// without delivering anything to userspace.
func (d *NodeDeath) Aborted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborted
}

// resolveDelivery decides, at the moment a deathWork for this registration
// is actually about to be handed to a reading thread, whether it is a
// BR_CLEAR_DEATH_NOTIFICATION_DONE acknowledgment (cleared) or should be
// dropped entirely because an abort raced the notification before
// delivery. Reading the current state here rather than at enqueue time is
// what lets a BC_CLEAR_DEATH_NOTIFICATION that arrives after SetDead but
// before delivery still suppress the BR_DEAD_BINDER payload.
func (d *NodeDeath) resolveDelivery() (cleared bool, drop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.aborted {
		return false, true
	}
	return d.cleared, false
}
