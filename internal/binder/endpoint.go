package binder

import (
	"github.com/goblinder/goblinder/internal/arena"
	"github.com/goblinder/goblinder/internal/uapi"
)

// Transact copies data/offsets into the target's BufferArena and submits a
// transaction from thread to the node behind handle (handle 0 meaning the
// context manager). For a synchronous call, the caller is expected to
// follow with a blocked Read on thread to receive the eventual BR_REPLY.
func (p *Process) Transact(thread *Thread, handle uint32, code, flags uint32, data, offsets []byte) (*Transaction, error) {
	ref, err := p.GetTransactionNode(handle)
	if err != nil {
		return nil, err
	}

	total := uintptr(len(data) + len(offsets))
	rng, err := ref.Node.Owner.arena.Alloc(total, 8)
	if err != nil {
		return nil, err
	}
	dst := ref.Node.Owner.arena.Bytes(rng)
	copy(dst, data)
	copy(dst[len(data):], offsets)

	info := arena.AllocationInfo{
		TargetNode:  ref.Node,
		ClearOnFree: flags&uapi.TF_CLEAR_BUF != 0,
	}
	if flags&uapi.TF_ONE_WAY != 0 {
		info.OnewayNode = ref.Node
	}
	_ = ref.Node.Owner.arena.SetInfo(rng.Offset, info)

	trd := &uapi.BinderTransactionData{
		Code:        code,
		Flags:       flags,
		DataSize:    uint64(len(data)),
		OffsetsSize: uint64(len(offsets)),
		SenderPID:   p.PID,
		SenderEUID:  p.euid,
	}

	txn := NewTransaction(thread, ref, thread.Stack(), trd, rng)
	if err := txn.Submit(); err != nil {
		_, _ = ref.Node.Owner.arena.Free(rng.Offset)
		return nil, err
	}
	_, _ = thread.pushWork(transactionCompleteWork{})
	return txn, nil
}

// Reply copies data/offsets into the original caller's BufferArena and
// submits it as a BC_REPLY, completing the transaction that is currently on
// top of thread's stack.
func (p *Process) Reply(thread *Thread, code, flags uint32, data, offsets []byte) error {
	orig := thread.Stack()
	if orig == nil {
		return &Error{Op: "Reply", PID: p.PID, Code: ErrCodeDead}
	}

	total := uintptr(len(data) + len(offsets))
	rng, err := orig.From.Process.arena.Alloc(total, 8)
	if err != nil {
		return err
	}
	dst := orig.From.Process.arena.Bytes(rng)
	copy(dst, data)
	copy(dst[len(data):], offsets)

	_ = orig.From.Process.arena.SetInfo(rng.Offset, arena.AllocationInfo{
		ClearOnFree: flags&uapi.TF_CLEAR_BUF != 0,
	})

	trd := &uapi.BinderTransactionData{
		Code:        code,
		Flags:       flags,
		DataSize:    uint64(len(data)),
		OffsetsSize: uint64(len(offsets)),
		SenderPID:   p.PID,
		SenderEUID:  p.euid,
	}

	reply := NewReply(thread, orig.From.Process, trd, rng)
	if _, err := orig.From.pushWork(reply); err != nil {
		_, _ = orig.From.Process.arena.Free(rng.Offset)
		return err
	}
	orig.SetReplyDelivered()
	thread.FinishStacked()
	return nil
}

// FreeBuffer releases a payload range previously delivered to this process
// via BR_TRANSACTION/BR_REPLY, answering BC_FREE_BUFFER. If the freed
// buffer backed a oneway transaction, this dispatches the next transaction
// queued on that node's FIFO, which is what keeps a busy oneway node's
// queue draining instead of stalling after its first delivery.
func (p *Process) FreeBuffer(offset uintptr) error {
	info, err := p.arena.Free(offset)
	if err != nil {
		return err
	}
	releaseOnewaySlot(info)
	return nil
}
