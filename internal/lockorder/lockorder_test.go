package lockorder

import "testing"

func TestEnter_OrderRespected(t *testing.T) {
	tr := New()
	if err := tr.Enter(LevelNodeRefs); err != nil {
		t.Fatalf("Enter(NodeRefs): %v", err)
	}
	if err := tr.Enter(LevelProcessInner); err != nil {
		t.Fatalf("Enter(ProcessInner): %v", err)
	}
	if err := tr.Enter(LevelThreadInner); err != nil {
		t.Fatalf("Enter(ThreadInner): %v", err)
	}
	tr.Exit(LevelThreadInner)
	tr.Exit(LevelProcessInner)
	tr.Exit(LevelNodeRefs)
}

func TestEnter_ViolationDetected(t *testing.T) {
	tr := New()
	if err := tr.Enter(LevelProcessInner); err != nil {
		t.Fatalf("Enter(ProcessInner): %v", err)
	}
	err := tr.Enter(LevelNodeRefs)
	if err == nil {
		t.Fatal("expected violation error acquiring node_refs after process.inner")
	}
	ve, ok := err.(*ViolationError)
	if !ok {
		t.Fatalf("error type = %T, want *ViolationError", err)
	}
	if ve.Held != LevelProcessInner || ve.Attempted != LevelNodeRefs {
		t.Errorf("violation = %+v, want held=ProcessInner attempted=NodeRefs", ve)
	}
}

func TestEnter_SameLevelTwiceRejected(t *testing.T) {
	tr := New()
	if err := tr.Enter(LevelThreadInner); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if err := tr.Enter(LevelThreadInner); err == nil {
		t.Error("expected violation re-entering the same level")
	}
}

func TestHolding(t *testing.T) {
	tr := New()
	if tr.Holding(LevelNodeRefs) {
		t.Error("Holding true before Enter")
	}
	_ = tr.Enter(LevelNodeRefs)
	if !tr.Holding(LevelNodeRefs) {
		t.Error("Holding false after Enter")
	}
}

func TestExit_MismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on mismatched Exit")
		}
	}()
	tr := New()
	_ = tr.Enter(LevelNodeRefs)
	tr.Exit(LevelProcessInner)
}
