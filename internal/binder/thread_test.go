package binder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThread_Read_DirectPushWakesImmediately(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	th := NewThread(p, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = th.pushWork(transactionCompleteWork{})
	}()

	rctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w, err := th.Read(rctx)
	require.NoError(t, err)
	assert.True(t, IsTransactionComplete(w))
}

func TestThread_Read_ProcessQueueDeliversWhenNoDirectWork(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	th := NewThread(p, 1)

	require.NoError(t, p.pushWork(transactionCompleteWork{}))

	rctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w, err := th.Read(rctx)
	require.NoError(t, err)
	assert.True(t, IsTransactionComplete(w))
}

func TestThread_Read_ContextCancelUnblocks(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	th := NewThread(p, 1)

	rctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := th.Read(rctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock on context cancellation")
	}
}

func TestThread_Shutdown_UnblocksRead(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	th := NewThread(p, 1)

	done := make(chan error, 1)
	go func() {
		_, err := th.Read(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	th.Shutdown()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, IsErrCode(err, ErrCodeDead))
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock on Shutdown")
	}
}

func TestThread_RegisterLooper_ConsumesRequestedCount(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	th := NewThread(p, 1)

	assert.False(t, th.RegisterLooper(), "no spawn request outstanding yet")

	p.innerMu.Lock()
	p.inner.requestedThreadCount = 1
	p.innerMu.Unlock()

	th2 := NewThread(p, 2)
	assert.True(t, th2.RegisterLooper())
}

func TestThread_FinishStacked_PopsOneLevel(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	th := NewThread(p, 1)

	outer := &Transaction{}
	inner := &Transaction{StackNext: outer}
	th.mu.Lock()
	th.stack = inner
	th.mu.Unlock()

	th.FinishStacked()
	assert.Same(t, outer, th.Stack())
}
