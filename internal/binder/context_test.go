package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcess(t *testing.T, ctx *Context, pid int32) *Process {
	t.Helper()
	p, err := NewProcess(ctx, pid, 0, 64<<10)
	require.NoError(t, err)
	return p
}

func TestRegistry_GetOrCreate_ReturnsSameContext(t *testing.T) {
	reg := NewRegistry()
	a := reg.GetOrCreate("default")
	b := reg.GetOrCreate("default")
	assert.Same(t, a, b)
}

func TestRegistry_Get_UnknownReturnsNil(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Get("nope"))
}

func TestContext_SetManagerNode_RejectsSecondManager(t *testing.T) {
	ctx := NewContext("test")
	p1 := newTestProcess(t, ctx, 1)
	p2 := newTestProcess(t, ctx, 2)

	ref1, err := p1.GetNode(1, 1, 0, true, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.SetManagerNode(ref1, p1.euid))

	ref2, err := p2.GetNode(2, 2, 0, true, nil)
	require.NoError(t, err)
	err = ctx.SetManagerNode(ref2, p2.euid)
	require.Error(t, err)
	assert.True(t, IsErrCode(err, ErrCodeNotManager))
}

func TestContext_SetManagerNode_RejectsDifferentEUIDAfterUnset(t *testing.T) {
	ctx := NewContext("test")
	p1, err := NewProcess(ctx, 1, 100, 64<<10)
	require.NoError(t, err)
	p2, err := NewProcess(ctx, 2, 200, 64<<10)
	require.NoError(t, err)

	ref1, err := p1.GetNode(1, 1, 0, true, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.SetManagerNode(ref1, p1.euid))

	ctx.UnsetManagerNode(p1)

	ref2, err := p2.GetNode(2, 2, 0, true, nil)
	require.NoError(t, err)
	err = ctx.SetManagerNode(ref2, p2.euid)
	require.Error(t, err)
	assert.True(t, IsErrCode(err, ErrCodeNotPermitted))

	ref3, err := p1.GetNode(1, 1, 0, true, nil)
	require.NoError(t, err)
	assert.NoError(t, ctx.SetManagerNode(ref3, p1.euid))
}

func TestContext_GetManagerNode_NoneRegistered(t *testing.T) {
	ctx := NewContext("test")
	_, err := ctx.GetManagerNode(true)
	require.Error(t, err)
	assert.True(t, IsErrCode(err, ErrCodeNoSuchHandle))
}

func TestContext_RegisterDeregisterProcess(t *testing.T) {
	ctx := NewContext("test")
	p := newTestProcess(t, ctx, 1)
	assert.Len(t, ctx.Procs(), 1)

	ctx.deregisterProcess(p)
	assert.Empty(t, ctx.Procs())
}

// IsErrCode is a small test helper mirroring the root package's IsCode,
// kept local so binder's own tests don't import the root module.
func IsErrCode(err error, code ErrCode) bool {
	be, ok := err.(*Error)
	return ok && be.Code == code
}
