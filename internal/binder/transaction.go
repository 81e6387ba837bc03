package binder

import (
	"sync"

	"github.com/goblinder/goblinder/internal/arena"
	"github.com/goblinder/goblinder/internal/uapi"
)

// Transaction is one in-flight BC_TRANSACTION/BC_REPLY: a payload copied
// into the target process's BufferArena plus the bookkeeping needed to
// route the completion and, for synchronous calls, the reply back to the
// sender. Grounded on transaction.rs's Transaction.
type Transaction struct {
	mu sync.Mutex

	From *Thread
	To   *Process

	// TargetNode is nil for replies (a reply is addressed to From's
	// waiting thread directly, never to a node).
	TargetNode *Node

	// StackNext is the transaction this one is stacked on: the
	// transaction the sending thread was itself processing when it made
	// this call, used to find a thread to reuse and to detect reply
	// ordering. Nil for the first transaction in a nested call chain.
	StackNext *Transaction

	Code  uint32
	Flags uint32

	SenderEUID uint32

	payload arena.Range
	oneway  bool

	replyDelivered     bool
	freeAllocationOnDrop bool
}

// NewTransaction constructs a non-reply transaction addressed to nodeRef's
// node, carrying payload: a range of the target's BufferArena that the
// caller has already filled with data/offsets. stackNext is the
// transaction (if any) the sending thread is already part of.
func NewTransaction(from *Thread, nodeRef *NodeRef, stackNext *Transaction, trd *uapi.BinderTransactionData, payload arena.Range) *Transaction {
	return &Transaction{
		From:                 from,
		To:                   nodeRef.Node.Owner,
		TargetNode:           nodeRef.Node,
		StackNext:            stackNext,
		Code:                 trd.Code,
		Flags:                trd.Flags,
		SenderEUID:           from.Process.euid,
		payload:              payload,
		oneway:               trd.Flags&uapi.TF_ONE_WAY != 0,
		freeAllocationOnDrop: true,
	}
}

// NewReply constructs a BC_REPLY transaction sent by from back to to (the
// original caller's process), with no target node and no stack.
func NewReply(from *Thread, to *Process, trd *uapi.BinderTransactionData, payload arena.Range) *Transaction {
	return &Transaction{
		From:                 from,
		To:                   to,
		Code:                 trd.Code,
		Flags:                trd.Flags,
		SenderEUID:           from.Process.euid,
		payload:              payload,
		freeAllocationOnDrop: true,
	}
}

func (t *Transaction) shouldSyncWakeup() bool {
	return !t.oneway
}

// Payload returns the arena range holding this transaction's copied data.
func (t *Transaction) Payload() arena.Range { return t.payload }

// IsStackedOn reports whether t is stacked directly on top of other,
// comparing by identity as transaction.rs's is_stacked_on does.
func (t *Transaction) IsStackedOn(other *Transaction) bool {
	return t.StackNext == other
}

// findTargetThread searches the stack for a thread belonging to t.To,
// letting a nested call reuse the thread waiting earlier in the chain
// instead of queuing to the process and potentially picking a different
// thread (which would risk deadlock if that thread is itself waiting on
// the caller).
func (t *Transaction) findTargetThread() *Thread {
	for cur := t.StackNext; cur != nil; cur = cur.StackNext {
		if cur.From.Process == t.To {
			return cur.From
		}
	}
	return nil
}

// FindFrom searches the stack for a transaction that originated at thread,
// used when thread submits a reply to make sure it targets the correct
// transaction in its own stack.
func (t *Transaction) FindFrom(thread *Thread) *Transaction {
	for cur := t.StackNext; cur != nil; cur = cur.StackNext {
		if cur.From == thread {
			return cur
		}
	}
	return nil
}

// Submit dispatches a freshly constructed (non-reply) transaction: oneway
// transactions go through the target node's private FIFO, synchronous
// transactions prefer a thread already in the stack, and otherwise fall
// back to the target process's queue.
func (t *Transaction) Submit() error {
	if t.oneway {
		if t.TargetNode == nil {
			return &Error{Op: "Submit", Code: ErrCodeDead}
		}
		if t.TargetNode.SubmitOneway(t) {
			return t.To.pushWork(t)
		}
		return nil
	}

	if thread := t.findTargetThread(); thread != nil {
		_, err := thread.pushWork(t)
		return err
	}
	return t.To.pushNewTransaction(t)
}

// SetReplyDelivered marks that a reply corresponding to this transaction
// has been handed to the waiting thread.
func (t *Transaction) SetReplyDelivered() {
	t.mu.Lock()
	t.replyDelivered = true
	t.mu.Unlock()
}

// Cancel is called when a transaction could not be delivered (e.g. the
// owning thread exited while it was queued): it frees the arena payload
// and, for a two-way call still awaiting a reply, wakes the sender with a
// dead-reply error instead of letting it hang forever.
func (t *Transaction) Cancel() {
	t.mu.Lock()
	owner := t.To
	rng := t.payload
	free := t.freeAllocationOnDrop
	t.freeAllocationOnDrop = false
	t.mu.Unlock()

	if free {
		info, err := owner.arena.Free(rng.Offset)
		if err == nil {
			releaseOnewaySlot(info)
		}
	}
	if !t.oneway {
		_, _ = t.From.pushWork(&returnErrorWork{code: ReturnDeadReply})
	}
}

// releaseOnewaySlot advances a node's oneway FIFO after the buffer backing
// its in-flight transaction is released, dispatching the next queued
// oneway transaction (if any) to keep the queue draining. Shared by
// Transaction.Cancel and Process.FreeBuffer, the two places a payload
// allocation tagged with an OnewayNode is actually freed.
func releaseOnewaySlot(info arena.AllocationInfo) {
	n, ok := info.OnewayNode.(*Node)
	if !ok || n == nil {
		return
	}
	if next := n.PendingOnewayFinished(); next != nil {
		_ = next.To.pushWork(next)
	}
}
