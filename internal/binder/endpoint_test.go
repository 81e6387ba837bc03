package binder

import (
	"context"
	"testing"

	"github.com/goblinder/goblinder/internal/uapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_Transact_CopiesPayloadIntoTargetArena(t *testing.T) {
	ctx := NewContext("test")
	manager := newTestProcess(t, ctx, 1)
	client := newTestProcess(t, ctx, 2)

	require.NoError(t, manager.SetAsManager(0, 0, 0))
	clientThread := NewThread(client, 1)

	data := []byte("hello")
	txn, err := client.Transact(clientThread, 0, 42, 0, data, nil)
	require.NoError(t, err)
	require.NotNil(t, txn)

	payload := manager.arena.Bytes(txn.Payload())
	assert.Equal(t, data, payload[:len(data)])

	w := clientThread.popDirect()
	require.NotNil(t, w)
	assert.True(t, IsTransactionComplete(w))
}

func TestProcess_Reply_CompletesStackedTransaction(t *testing.T) {
	ctx := NewContext("test")
	manager := newTestProcess(t, ctx, 1)
	client := newTestProcess(t, ctx, 2)

	require.NoError(t, manager.SetAsManager(0, 0, 0))
	clientThread := NewThread(client, 1)
	managerThread := NewThread(manager, 1)

	_, err := client.Transact(clientThread, 0, 42, 0, []byte("ping"), nil)
	require.NoError(t, err)

	w, err := managerThread.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, w)
	txn, ok := w.(*Transaction)
	require.True(t, ok)
	managerThread.mu.Lock()
	managerThread.stack = txn
	managerThread.mu.Unlock()

	require.NoError(t, manager.Reply(managerThread, 0, 0, []byte("pong"), nil))

	require.True(t, IsTransactionComplete(clientThread.popDirect()), "BR_TRANSACTION_COMPLETE precedes the reply")
	reply := clientThread.popDirect()
	require.NotNil(t, reply)
	replyTxn, ok := reply.(*Transaction)
	require.True(t, ok)
	payload := client.arena.Bytes(replyTxn.Payload())
	assert.Equal(t, []byte("pong"), payload[:4])

	assert.Nil(t, managerThread.Stack(), "replying pops the stacked transaction")
}

func TestProcess_Reply_WithNoStackedTransactionErrors(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	th := NewThread(p, 1)

	err := p.Reply(th, 0, 0, nil, nil)
	require.Error(t, err)
	assert.True(t, IsErrCode(err, ErrCodeDead))
}

func TestProcess_FreeBuffer_ReleasesRange(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)

	rng, err := p.arena.Alloc(32, 8)
	require.NoError(t, err)
	before := p.arena.InUse()

	require.NoError(t, p.FreeBuffer(rng.Offset))
	assert.Less(t, uint64(p.arena.InUse()), uint64(before))
}

// TestProcess_FreeBuffer_DrainsOnewayFIFO exercises the full oneway queue
// path: Transact twice into the same node while the first is still
// undelivered (queuing the second behind it in the node's FIFO), then
// confirms that FreeBuffer-ing the first payload dispatches the second
// into the owner's work queue rather than leaving it stuck.
func TestProcess_FreeBuffer_DrainsOnewayFIFO(t *testing.T) {
	ctx := NewContext("test")
	owner := newTestProcess(t, ctx, 1)
	sender := newTestProcess(t, ctx, 2)

	ref, err := owner.GetNode(0x1000, 0x2000, 0, true, nil)
	require.NoError(t, err)
	handle, err := sender.InsertOrUpdateHandle(ref, false)
	require.NoError(t, err)

	senderThread := NewThread(sender, 1)

	first, err := sender.Transact(senderThread, handle, 1, uapi.TF_ONE_WAY, []byte("a"), nil)
	require.NoError(t, err)
	second, err := sender.Transact(senderThread, handle, 2, uapi.TF_ONE_WAY, []byte("b"), nil)
	require.NoError(t, err)

	// GetNode queued the node's initial refcount work ahead of any transaction.
	_, isNodeWork := owner.GetWork().(*nodeWork)
	require.True(t, isNodeWork)

	w := owner.GetWork()
	require.NotNil(t, w)
	assert.Same(t, first, w, "first oneway dispatches immediately")
	assert.Nil(t, owner.GetWork(), "second must wait behind the first in the node's FIFO")

	require.NoError(t, owner.FreeBuffer(first.Payload().Offset))

	w = owner.GetWork()
	require.NotNil(t, w, "freeing the first buffer must dispatch the queued second transaction")
	assert.Same(t, second, w)
}
