package binder

import (
	"sync"
	"sync/atomic"

	"github.com/goblinder/goblinder/internal/arena"
)

// nextGlobalNodeID hands out Node.GlobalID values. It is shared by every
// Process so that nodes of different owners never share an id in a
// handle table's byGlobalID index.
var nextGlobalNodeID atomic.Uint64

// nodeRefInfo pairs a NodeRef with the (at most one) death notification
// registered against it, so BC_CLEAR_DEATH_NOTIFICATION and handle removal
// can find and detach the registration in one lookup.
type nodeRefInfo struct {
	ref   *NodeRef
	death *NodeDeath
}

// processInner is the state guarded by Process.innerMu: the thread table,
// ready-thread list, process-wide work queue, locally hosted nodes, and
// delivered-death bookkeeping. Grounded on process.rs's ProcessInner.
type processInner struct {
	isManager bool
	isDead    bool

	threads      map[int32]*Thread
	readyThreads []*Thread

	work  []WorkItem
	nodes map[uint64]*Node // keyed by ptr

	deliveredDeaths []*NodeDeath

	requestedThreadCount uint32
	maxThreads           uint32
	startedThreadCount   uint32
}

// Process is one client's connection to a Context: its thread pool, the
// nodes it hosts, the handles it holds into other processes' nodes, and
// its private BufferArena. Grounded on process.rs's Process.
type Process struct {
	Ctx  *Context
	PID  int32
	euid uint32

	arena *arena.Arena

	innerMu sync.Mutex
	inner   processInner

	// node_refs is a separate lock from inner, exactly as in the
	// reference implementation, to avoid recursive acquisition when a
	// refcount change on another process's node needs to walk back into
	// this process's handle table.
	refsMu     sync.Mutex
	byHandle   map[uint32]*nodeRefInfo
	byGlobalID map[uint64]uint32

	nextNodeID uint64
}

// NewProcess constructs a Process registered against ctx with its own
// BufferArena of the given size.
func NewProcess(ctx *Context, pid int32, euid uint32, arenaSize uintptr) (*Process, error) {
	a, err := arena.New(arenaSize)
	if err != nil {
		return nil, err
	}
	p := &Process{
		Ctx:        ctx,
		PID:        pid,
		euid:       euid,
		arena:      a,
		byHandle:   make(map[uint32]*nodeRefInfo),
		byGlobalID: make(map[uint64]uint32),
	}
	p.inner.threads = make(map[int32]*Thread)
	p.inner.nodes = make(map[uint64]*Node)
	ctx.registerProcess(p)
	return p, nil
}

// IsDead reports whether the process has been torn down.
func (p *Process) IsDead() bool {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	return p.inner.isDead
}

// pushNewTransaction enqueues a brand new (not-yet-stacked) transaction,
// preferring an idle thread over the process queue.
func (p *Process) pushNewTransaction(t *Transaction) error {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	return p.pushNewTransactionLocked(t)
}

func (p *Process) pushNewTransactionLocked(t *Transaction) error {
	if thread := p.popReadyThreadLocked(); thread != nil {
		ok, err := thread.pushNewTransaction(t)
		if err != nil {
			return err
		}
		if !ok {
			p.inner.readyThreads = append(p.inner.readyThreads, thread)
		}
		return nil
	}
	if p.inner.isDead {
		return &Error{Op: "pushNewTransaction", PID: p.PID, Code: ErrCodeDead}
	}
	p.inner.work = append(p.inner.work, t)
	if p.requestMoreThreadsLocked() {
		p.inner.work = append(p.inner.work, spawnLooperWork{})
	}
	return nil
}

// pushWork enqueues a generic work item (node notification, death
// notification, transaction completion marker), preferring an idle thread.
func (p *Process) pushWork(w WorkItem) error {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	return p.pushWorkLocked(w)
}

func (p *Process) popReadyThreadLocked() *Thread {
	if len(p.inner.readyThreads) == 0 {
		return nil
	}
	t := p.inner.readyThreads[0]
	p.inner.readyThreads = p.inner.readyThreads[1:]
	return t
}

// GetWork pops one item from the process-wide queue, if any, for a thread
// that just finished whatever it was doing and has no stacked transaction
// to return to.
func (p *Process) GetWork() WorkItem {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	if len(p.inner.work) == 0 {
		return nil
	}
	w := p.inner.work[0]
	p.inner.work = p.inner.work[1:]
	return w
}

// RegisterReady marks thread as idle and available to receive the next
// work item pushed to this process, returning any work item that was
// already queued instead (so the caller never actually blocks with work
// waiting).
func (p *Process) RegisterReady(t *Thread) WorkItem {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	if len(p.inner.work) > 0 {
		w := p.inner.work[0]
		p.inner.work = p.inner.work[1:]
		return w
	}
	p.inner.readyThreads = append(p.inner.readyThreads, t)
	return nil
}

// Unregister removes thread from the ready list, called when it stops
// waiting (woken by a signal-equivalent, or by a direct push) before
// picking up work through the normal path.
func (p *Process) Unregister(t *Thread) {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	for i, cur := range p.inner.readyThreads {
		if cur == t {
			p.inner.readyThreads = append(p.inner.readyThreads[:i], p.inner.readyThreads[i+1:]...)
			return
		}
	}
}

// AddThread registers a new Thread under its PID/TID.
func (p *Process) AddThread(t *Thread) {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	p.inner.threads[t.TID] = t
}

// RegisterThreadStart consumes one outstanding BC_REGISTER_LOOPER request,
// reporting false if none was outstanding (the looper registered without
// being asked, which callers may choose to reject).
func (p *Process) RegisterThreadStart() bool {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	if p.inner.requestedThreadCount == 0 {
		return false
	}
	p.inner.requestedThreadCount--
	p.inner.startedThreadCount++
	return true
}

// SetMaxThreads and requestMoreThreadsLocked implement BINDER_SET_MAX_THREADS and
// the BR_SPAWN_LOOPER backpressure signal: a process asks for one more
// thread to be spawned whenever it queues work and has no slack left.
func (p *Process) SetMaxThreads(n uint32) {
	p.innerMu.Lock()
	p.inner.maxThreads = n
	p.innerMu.Unlock()
}

func (p *Process) requestMoreThreadsLocked() bool {
	if p.inner.startedThreadCount >= p.inner.maxThreads {
		return false
	}
	if p.inner.requestedThreadCount > 0 {
		return false
	}
	p.inner.requestedThreadCount++
	return true
}

// DeathDelivered records a death notification that has been handed to a
// thread, so a later BC_DEAD_BINDER_DONE can find and finish it.
func (p *Process) DeathDelivered(d *NodeDeath) {
	p.innerMu.Lock()
	p.inner.deliveredDeaths = append(p.inner.deliveredDeaths, d)
	p.innerMu.Unlock()
}

// PullDeliveredDeath removes and returns the delivered death registration
// with the given cookie, answering a BC_DEAD_BINDER_DONE.
func (p *Process) PullDeliveredDeath(cookie uint64) *NodeDeath {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	for i, d := range p.inner.deliveredDeaths {
		if d.Cookie == cookie {
			p.inner.deliveredDeaths = append(p.inner.deliveredDeaths[:i], p.inner.deliveredDeaths[i+1:]...)
			return d
		}
	}
	return nil
}

// getExistingNodeLocked returns an already-hosted node at ptr, or nil, or
// an *Error if the cookie doesn't match the node already registered there
// (a BC_TRANSACTION targeting a stale/reused ptr).
func (p *Process) getExistingNodeLocked(ptr, cookie uint64) (*Node, error) {
	n, ok := p.inner.nodes[ptr]
	if !ok {
		return nil, nil
	}
	if n.Cookie != cookie {
		return nil, &Error{Op: "GetNode", PID: p.PID, Code: ErrCodeInvalidCookie}
	}
	return n, nil
}

// GetNode returns the Node for (ptr, cookie), creating it if this is the
// first reference to it, and returns a NodeRef reflecting the requested
// strong/weak increment. Mirrors process.rs's Process::get_node.
func (p *Process) GetNode(ptr, cookie uint64, flags uint32, strong bool, via *Thread) (*NodeRef, error) {
	p.innerMu.Lock()
	if n, err := p.getExistingNodeLocked(ptr, cookie); err != nil {
		p.innerMu.Unlock()
		return nil, err
	} else if n != nil {
		ref := p.newNodeRefLocked(n, strong, via)
		p.innerMu.Unlock()
		return ref, nil
	}
	p.innerMu.Unlock()

	node := NewNode(nextGlobalNodeID.Add(1), ptr, cookie, flags, p)

	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	if n, err := p.getExistingNodeLocked(ptr, cookie); err != nil {
		return nil, err
	} else if n != nil {
		return p.newNodeRefLocked(n, strong, via), nil
	}
	p.inner.nodes[ptr] = node
	return p.newNodeRefLocked(node, strong, via), nil
}

func (p *Process) newNodeRefLocked(n *Node, strong bool, via *Thread) *NodeRef {
	p.updateNodeRefcountLocked(n, true, strong, 1, via)
	if strong {
		return NewNodeRef(n, 1, 0)
	}
	return NewNodeRef(n, 0, 1)
}

// updateNodeRefcountLocked applies a raw refcount change to n and, if it
// crossed a 0<->1 boundary, enqueues (and pushes) the work item that will
// resolve the resulting BR_* notifications at actual delivery time. The
// caller must already hold p.innerMu, and n.Owner must be p.
func (p *Process) updateNodeRefcountLocked(n *Node, inc, strong bool, count int, via *Thread) {
	if !n.UpdateRefcountLocked(inc, strong, count) {
		return
	}
	w := n.enqueueRefcountWorkLocked()
	if w == nil {
		return
	}
	if via != nil {
		_, _ = via.pushWork(w)
		return
	}
	_ = p.pushWorkLocked(w)
}

// resolveNodeWorkLocked resolves a pending refcount work item for n,
// dropping n from this process's node table if it is now eligible. The
// caller must already hold p.innerMu, and n.Owner must be p.
func (p *Process) resolveNodeWorkLocked(n *Node) []nodeWorkKind {
	kinds, removable := n.resolveDeliveryLocked()
	if removable {
		p.removeNodeLocked(n.Ptr)
	}
	return kinds
}

func (p *Process) pushWorkLocked(w WorkItem) error {
	if thread := p.popReadyThreadLocked(); thread != nil {
		ok, err := thread.pushWork(w)
		if err != nil {
			return err
		}
		if !ok {
			p.inner.readyThreads = append(p.inner.readyThreads, thread)
		}
		return nil
	}
	if p.inner.isDead {
		return &Error{Op: "pushWork", PID: p.PID, Code: ErrCodeDead}
	}
	p.inner.work = append(p.inner.work, w)
	if p.requestMoreThreadsLocked() {
		p.inner.work = append(p.inner.work, spawnLooperWork{})
	}
	return nil
}

// removeNodeLocked drops a locally hosted node from the table. The caller
// must already hold p.innerMu; resolveNodeWorkLocked is the only caller,
// invoked once delivery of a node's last pending refcount notification
// determines both sides are at zero with nothing still outstanding.
func (p *Process) removeNodeLocked(ptr uint64) {
	delete(p.inner.nodes, ptr)
}

// InsertOrUpdateHandle assigns (or reuses) a handle for ref in this
// process's table, mirroring process.rs's insert_or_update_handle: handle
// 0 is reserved for the context manager.
func (p *Process) InsertOrUpdateHandle(ref *NodeRef, isManager bool) (uint32, error) {
	p.refsMu.Lock()
	defer p.refsMu.Unlock()

	if h, ok := p.byGlobalID[ref.Node.GlobalID]; ok {
		p.byHandle[h].ref.Absorb(ref)
		return h, nil
	}

	target := uint32(1)
	if isManager {
		target = 0
	}
	for {
		info, taken := p.byHandle[target]
		_ = info
		if !taken {
			break
		}
		target++
	}

	if p.IsDead() {
		return 0, &Error{Op: "InsertOrUpdateHandle", PID: p.PID, Code: ErrCodeDead}
	}

	p.byGlobalID[ref.Node.GlobalID] = target
	p.byHandle[target] = &nodeRefInfo{ref: ref}
	return target, nil
}

// GetNodeFromHandle resolves a handle to a cloned reference of the
// requested strength.
func (p *Process) GetNodeFromHandle(handle uint32, strong bool) (*NodeRef, error) {
	p.refsMu.Lock()
	info, ok := p.byHandle[handle]
	p.refsMu.Unlock()
	if !ok {
		return nil, &Error{Op: "GetNodeFromHandle", PID: p.PID, Handle: handle, Code: ErrCodeNoSuchHandle}
	}
	ref, err := info.ref.Clone(strong)
	if err != nil {
		return nil, &Error{Op: "GetNodeFromHandle", PID: p.PID, Handle: handle, Code: ErrCodeDead}
	}
	return ref, nil
}

// GetTransactionNode resolves handle (or, for handle 0, the context
// manager) to the node a new transaction should target, marking it as
// used for a transaction.
func (p *Process) GetTransactionNode(handle uint32) (*NodeRef, error) {
	var ref *NodeRef
	var err error
	if handle == 0 {
		ref, err = p.Ctx.GetManagerNode(true)
	} else {
		ref, err = p.GetNodeFromHandle(handle, true)
	}
	if err != nil {
		return nil, err
	}
	ref.Node.SetUsedForTransaction()
	return ref, nil
}

// UpdateRef applies a BC_INCREFS/BC_ACQUIRE/BC_RELEASE/BC_DECREFS to the
// handle's local reference, removing the handle entry once both counts
// reach zero. The Node-side refcount change is applied by NodeRef.Update
// itself (only on the handle's own 0<->1 transition), so this never
// separately recomputes or double-applies it.
func (p *Process) UpdateRef(handle uint32, inc, strong bool) error {
	if inc && handle == 0 {
		if ref, err := p.Ctx.GetManagerNode(strong); err == nil {
			if ref.Node.Owner == p {
				return &Error{Op: "UpdateRef", PID: p.PID, Code: ErrCodeNotPermitted}
			}
			_, _ = p.InsertOrUpdateHandle(ref, true)
			return nil
		}
	}

	p.refsMu.Lock()
	info, ok := p.byHandle[handle]
	if !ok {
		p.refsMu.Unlock()
		return &Error{Op: "UpdateRef", PID: p.PID, Handle: handle, Code: ErrCodeNoSuchHandle}
	}
	bothZero := info.ref.Update(inc, strong)
	var death *NodeDeath
	if bothZero {
		death = info.death
		delete(p.byHandle, handle)
		delete(p.byGlobalID, info.ref.Node.GlobalID)
	}
	p.refsMu.Unlock()

	if death != nil {
		// The handle (and the implicit death subscription riding on it)
		// is going away, not the node: abort rather than fire.
		if death.SetCleared(true) {
			_ = p.pushWork(&deathWork{death: death})
		}
	}
	return nil
}

// RequestDeathNotification registers a death notification for handle,
// failing if one is already registered (mirrors the reference driver
// rejecting a duplicate BC_REQUEST_DEATH_NOTIFICATION for the same handle).
func (p *Process) RequestDeathNotification(handle uint32, cookie uint64) (*NodeDeath, error) {
	p.refsMu.Lock()
	info, ok := p.byHandle[handle]
	if !ok {
		p.refsMu.Unlock()
		return nil, &Error{Op: "RequestDeathNotification", PID: p.PID, Handle: handle, Code: ErrCodeNoSuchHandle}
	}
	if info.death != nil {
		p.refsMu.Unlock()
		return nil, &Error{Op: "RequestDeathNotification", PID: p.PID, Handle: handle, Code: ErrCodeNotPermitted}
	}
	death := NewNodeDeath(info.ref.Node, p, cookie)
	info.death = death
	p.refsMu.Unlock()

	info.ref.Node.AddDeath(death)
	if info.ref.Node.Owner.IsDead() {
		if death.SetDead() {
			_ = p.pushWork(&deathWork{death: death})
		}
	}
	return death, nil
}

// ClearDeathNotification removes the death registration on handle, queuing
// a BR_CLEAR_DEATH_NOTIFICATION_DONE acknowledgment if needed.
func (p *Process) ClearDeathNotification(handle uint32) error {
	p.refsMu.Lock()
	info, ok := p.byHandle[handle]
	if !ok || info.death == nil {
		p.refsMu.Unlock()
		return &Error{Op: "ClearDeathNotification", PID: p.PID, Handle: handle, Code: ErrCodeNoSuchHandle}
	}
	death := info.death
	info.death = nil
	p.refsMu.Unlock()

	if death.SetCleared(false) {
		return p.pushWork(&deathWork{death: death})
	}
	return nil
}

// SetAsManager designates this process as its Context's manager, backed by
// ptr/cookie/flags (all zero if the caller used the legacy
// BINDER_SET_CONTEXT_MGR ioctl with no FlatBinderObject). Mirrors
// process.rs's set_as_manager: the manager's own node is force-marked as
// already held so it never receives its own INCREFS/ACQUIRE notification.
func (p *Process) SetAsManager(ptr, cookie uint64, flags uint32) error {
	ref, err := p.GetNode(ptr, cookie, flags, true, nil)
	if err != nil {
		return err
	}
	if err := p.Ctx.SetManagerNode(ref, p.euid); err != nil {
		return err
	}
	p.innerMu.Lock()
	p.inner.isManager = true
	p.innerMu.Unlock()
	ref.Node.ForceHasCount()
	return nil
}

// Arena exposes the process's BufferArena to the dispatch layer.
func (p *Process) Arena() *arena.Arena { return p.arena }

// MarkDead tears the process down: wakes every idle thread with a
// shutdown signal, fails every queued transaction, vacates the context
// manager slot if this process held it, clears (rather than fires) its
// own outgoing death registrations since it can no longer be told about
// them, and notifies every process watching a node this process owns.
// Mirrors process.rs's deferred_release.
func (p *Process) MarkDead() {
	p.innerMu.Lock()
	p.inner.isDead = true
	pending := p.inner.work
	p.inner.work = nil
	ready := p.inner.readyThreads
	p.inner.readyThreads = nil
	ownedNodes := make([]*Node, 0, len(p.inner.nodes))
	for _, n := range p.inner.nodes {
		ownedNodes = append(ownedNodes, n)
	}
	p.innerMu.Unlock()

	for _, w := range pending {
		if t, ok := w.(*Transaction); ok {
			t.Cancel()
		}
	}
	for _, t := range ready {
		t.Shutdown()
	}

	p.Ctx.UnsetManagerNode(p)

	p.refsMu.Lock()
	outgoing := make([]*NodeDeath, 0, len(p.byHandle))
	for _, info := range p.byHandle {
		if info.death != nil {
			outgoing = append(outgoing, info.death)
		}
	}
	p.refsMu.Unlock()
	for _, d := range outgoing {
		// p is dying, not the node d watches: abort the subscription
		// rather than deliver it, since p can no longer receive it.
		if d.SetCleared(true) {
			_ = d.Process.pushWork(&deathWork{death: d})
		}
	}

	for _, n := range ownedNodes {
		n.CleanupOneway()
		for _, d := range n.Deaths() {
			if d.SetDead() {
				_ = d.Process.pushWork(&deathWork{death: d})
			}
		}
	}

	_ = p.arena.Close()
	p.Ctx.deregisterProcess(p)
}

// IncRefDone acknowledges a BC_INCREFS_DONE/BC_ACQUIRE_DONE for the node
// at ptr, resolving its refcount work immediately if the ack makes it
// newly eligible to drop BR_RELEASE/BR_DECREFS (or be removed entirely).
func (p *Process) IncRefDone(ptr uint64, strong bool) error {
	p.innerMu.Lock()
	defer p.innerMu.Unlock()
	n, ok := p.inner.nodes[ptr]
	if !ok {
		return &Error{Op: "IncRefDone", PID: p.PID, Code: ErrCodeInvalidCookie}
	}
	if !n.IncRefDoneLocked(strong) {
		return nil
	}
	if w := n.enqueueRefcountWorkLocked(); w != nil {
		_ = p.pushWorkLocked(w)
	}
	return nil
}

// DeadBinderDone acknowledges a BC_DEAD_BINDER_DONE, completing the
// handshake for the delivered death notification with the given cookie
// and queuing a deferred BR_CLEAR_DEATH_NOTIFICATION_DONE if a
// BC_CLEAR_DEATH_NOTIFICATION arrived for it before this ack did.
func (p *Process) DeadBinderDone(cookie uint64) error {
	d := p.PullDeliveredDeath(cookie)
	if d == nil {
		return &Error{Op: "DeadBinderDone", PID: p.PID, Code: ErrCodeInvalidCookie}
	}
	if d.SetNotificationDone() {
		return p.pushWork(&deathWork{death: d})
	}
	return nil
}
