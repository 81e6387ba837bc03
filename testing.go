package goblinder

// TestContext wires a fresh Runtime and Context together for unit tests
// that need a clean, isolated Binder namespace, mirroring the role
// go-ublk's MockBackend plays for backend-facing tests.
type TestContext struct {
	Runtime *Runtime
	Context *Context
}

// NewTestContext returns a TestContext backed by a brand new Runtime, so
// concurrently running tests never observe each other's processes.
func NewTestContext() *TestContext {
	rt := NewRuntime()
	return &TestContext{Runtime: rt, Context: rt.OpenContext("test")}
}

// NewProcess joins a new Process to the test context using
// DefaultProcessConfig, skipping the error return for tests that don't
// expect arena allocation to fail.
func (tc *TestContext) NewProcess(pid int32, euid uint32) *Process {
	p, err := tc.Context.NewProcess(pid, euid, DefaultProcessConfig())
	if err != nil {
		panic(err)
	}
	return p
}

// NewManagerPair is the common fixture for transaction tests: a manager
// process registered as the context manager, and a client process with one
// looper thread each, ready to Transact against handle 0.
func NewManagerPair() (tc *TestContext, manager, client *Process, managerThread, clientThread *Thread) {
	tc = NewTestContext()
	manager = tc.NewProcess(1, 0)
	client = tc.NewProcess(2, 0)
	if err := manager.SetAsManager(0, 0, 0); err != nil {
		panic(err)
	}
	managerThread = manager.NewThread(1)
	clientThread = client.NewThread(1)
	return tc, manager, client, managerThread, clientThread
}
