package binder

// countState tracks one side (strong or weak) of a Node's distributed
// refcount: the count contributed by every NodeRef that has crossed the
// 0<->1 boundary on this side, and whether the owning userspace process has
// been told (and has acked) that it holds the count. Grounded on node.rs's
// CountState.
type countState struct {
	count    int
	hasCount bool // owner userspace has been told to hold a reference
}

// Node is the engine-side representation of a single binder object: a
// (ptr, cookie) pair registered by its owning Process via a BC_TRANSACTION
// reply or BC_INCREFS/BC_ACQUIRE sequence. Every NodeRef held by other
// processes resolves through this Node.
//
// A Node has no lock of its own: every field below is guarded by its
// Owner Process's innerMu, exactly as node.rs's NodeInner is guarded by
// the owning ProcessInner's lock rather than a private one. Methods
// suffixed Locked assume the caller already holds Owner.innerMu; the
// others acquire it themselves and must not be called while already
// holding it.
type Node struct {
	GlobalID uint64 // process-independent id, drawn from a counter shared by every Process
	Ptr      uint64
	Cookie   uint64
	Flags    uint32
	Owner    *Process

	strong countState
	weak   countState

	// activeIncRefs counts BR_INCREFS/BR_ACQUIRE deliveries not yet acked
	// via BC_INCREFS_DONE/BC_ACQUIRE_DONE. While non-zero, neither side's
	// hasCount may be cleared, so no BR_RELEASE/BR_DECREFS is ever sent
	// for a count userspace hasn't finished being told to take. Grounded
	// on node.rs's NodeInner::active_inc_refs.
	activeIncRefs int
	// pendingRefcountWork dedups the single "something changed, come
	// resolve it" refcount work item this node may have in flight, the
	// same way node.rs's NodeInner::has_pending_work_task does.
	pendingRefcountWork bool

	usedForTxn         bool
	internalStrongRefs int

	oneway       []*Transaction
	hasOnewayTxn bool // a oneway transaction to this node is currently being delivered

	deaths []*NodeDeath
}

// NewNode constructs a Node owned by owner. The caller is responsible for
// registering it into owner's node table under owner's innerMu.
func NewNode(globalID uint64, ptr, cookie uint64, flags uint32, owner *Process) *Node {
	return &Node{
		GlobalID: globalID,
		Ptr:      ptr,
		Cookie:   cookie,
		Flags:    flags,
		Owner:    owner,
	}
}

// SetUsedForTransaction records that this node has been the target of a
// transaction at least once, matching node.rs's set_used_for_transaction;
// the flag only ever transitions false -> true.
func (n *Node) SetUsedForTransaction() {
	n.Owner.innerMu.Lock()
	n.usedForTxn = true
	n.Owner.innerMu.Unlock()
}

// UpdateRefcountLocked applies an increment or decrement to the given side
// of the node's refcount, reporting whether the count crossed the 0<->1
// boundary in a way that toggles hasCount (0->1 while userspace holds no
// count, or 1->0 while it does) and so needs the owning process to resolve
// it. The caller must already hold Owner.innerMu.
func (n *Node) UpdateRefcountLocked(inc, strong bool, count int) (changed bool) {
	cs := &n.weak
	if strong {
		cs = &n.strong
	}
	before := cs.count
	if inc {
		cs.count += count
		return before == 0 && cs.count != 0 && !cs.hasCount
	}
	if cs.count < count {
		cs.count = 0
	} else {
		cs.count -= count
	}
	return before != 0 && cs.count == 0 && cs.hasCount
}

// enqueueRefcountWorkLocked returns a work item that will resolve this
// node's refcount state at delivery time, or nil if one is already
// queued. The caller must already hold Owner.innerMu.
func (n *Node) enqueueRefcountWorkLocked() WorkItem {
	if n.pendingRefcountWork {
		return nil
	}
	n.pendingRefcountWork = true
	return &nodeWork{node: n}
}

// resolveDeliveryLocked computes, at the moment a refcount work item for
// this node is actually about to be handed to a reading thread, the BR_*
// notifications it represents and whether the node is now eligible to be
// dropped from its owner's table. This mirrors node.rs's
// DeliverToRead::do_work for Node: the decision is made fresh here rather
// than when the work item was originally queued, so a BC_INCREFS_DONE
// that raced the enqueue is already reflected. The caller must already
// hold Owner.innerMu.
func (n *Node) resolveDeliveryLocked() (kinds []nodeWorkKind, removable bool) {
	n.pendingRefcountWork = false

	strongWanted := n.strong.count > 0
	weakWanted := strongWanted || n.weak.count > 0

	if weakWanted && !n.weak.hasCount {
		n.weak.hasCount = true
		n.activeIncRefs++
		kinds = append(kinds, nodeWorkIncRefs)
	}
	if strongWanted && !n.strong.hasCount {
		n.strong.hasCount = true
		n.activeIncRefs++
		kinds = append(kinds, nodeWorkAcquire)
	}

	if n.activeIncRefs == 0 {
		if !strongWanted && n.strong.hasCount {
			n.strong.hasCount = false
			kinds = append(kinds, nodeWorkRelease)
		}
		if !weakWanted && n.weak.hasCount {
			n.weak.hasCount = false
			kinds = append(kinds, nodeWorkDecRefs)
		}
	}

	removable = n.activeIncRefs == 0 && !weakWanted && !n.strong.hasCount && !n.weak.hasCount
	return kinds, removable
}

// IncRefDoneLocked acknowledges a BC_INCREFS_DONE/BC_ACQUIRE_DONE from the
// owning process. The reference driver keeps a single combined counter
// for both sides rather than one per side, so which side the ack names is
// informational only; this reports whether the count reaching zero makes
// the node newly eligible to be dropped, matching node.rs's
// inc_ref_done_locked. The caller must already hold Owner.innerMu.
func (n *Node) IncRefDoneLocked(strong bool) (shouldResolveDrop bool) {
	_ = strong
	if n.activeIncRefs == 0 {
		return false
	}
	n.activeIncRefs--
	if n.activeIncRefs != 0 {
		return false
	}
	strongWanted := n.strong.count > 0
	weakWanted := strongWanted || n.weak.count > 0
	return (!strongWanted && n.strong.hasCount) || (!weakWanted && n.weak.hasCount)
}

// ForceHasCount marks both sides of the node as held without going through
// a notification round trip, used when a process becomes the context
// manager: the reference implementation suppresses the initial
// INCREFS/ACQUIRE delivery for the manager's own node.
func (n *Node) ForceHasCount() {
	n.Owner.innerMu.Lock()
	n.strong.hasCount = true
	n.weak.hasCount = true
	n.Owner.innerMu.Unlock()
}

// Counts returns the current strong/weak counts, for debug reporting via
// BINDER_GET_NODE_INFO_FOR_REF.
func (n *Node) Counts() (strong, weak int) {
	n.Owner.innerMu.Lock()
	defer n.Owner.innerMu.Unlock()
	return n.strong.count, n.weak.count
}

// SubmitOneway enqueues an async transaction to this node's private FIFO.
// If no oneway transaction is currently being delivered, it is dispatched
// immediately; otherwise it waits behind the one in flight, preserving
// Binder's oneway-per-node ordering guarantee (node.rs's submit_oneway).
func (n *Node) SubmitOneway(txn *Transaction) (dispatchNow bool) {
	n.Owner.innerMu.Lock()
	defer n.Owner.innerMu.Unlock()
	if n.hasOnewayTxn {
		n.oneway = append(n.oneway, txn)
		return false
	}
	n.hasOnewayTxn = true
	return true
}

// PendingOnewayFinished is called when the in-flight oneway transaction to
// this node completes (its payload buffer has been freed), dispatching
// the next queued one if any and returning it so the caller can submit it
// to the owning process. This is what lets a node's oneway FIFO keep
// draining instead of stalling once the first transaction is delivered.
func (n *Node) PendingOnewayFinished() *Transaction {
	n.Owner.innerMu.Lock()
	defer n.Owner.innerMu.Unlock()
	if len(n.oneway) == 0 {
		n.hasOnewayTxn = false
		return nil
	}
	next := n.oneway[0]
	n.oneway = n.oneway[1:]
	return next
}

// CleanupOneway drops every still-queued oneway transaction on this node,
// called when the node (and its owning process) is torn down.
func (n *Node) CleanupOneway() []*Transaction {
	n.Owner.innerMu.Lock()
	defer n.Owner.innerMu.Unlock()
	dropped := n.oneway
	n.oneway = nil
	n.hasOnewayTxn = false
	return dropped
}

// AddDeath registers a NodeDeath to be notified if this node's owning
// process dies.
func (n *Node) AddDeath(d *NodeDeath) {
	n.Owner.innerMu.Lock()
	n.deaths = append(n.deaths, d)
	n.Owner.innerMu.Unlock()
}

// RemoveDeath unregisters a previously added NodeDeath (BC_CLEAR_DEATH_NOTIFICATION).
func (n *Node) RemoveDeath(d *NodeDeath) {
	n.Owner.innerMu.Lock()
	defer n.Owner.innerMu.Unlock()
	for i, cur := range n.deaths {
		if cur == d {
			n.deaths = append(n.deaths[:i], n.deaths[i+1:]...)
			return
		}
	}
}

// Deaths returns a snapshot of currently registered death notifications,
// delivered when the owning process exits.
func (n *Node) Deaths() []*NodeDeath {
	n.Owner.innerMu.Lock()
	defer n.Owner.innerMu.Unlock()
	out := make([]*NodeDeath, len(n.deaths))
	copy(out, n.deaths)
	return out
}
