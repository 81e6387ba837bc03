package arena

import "testing"

func TestAllocFree_Basic(t *testing.T) {
	a, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	r1, err := a.Alloc(64, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if r1.Offset != 0 {
		t.Errorf("first alloc offset = %d, want 0", r1.Offset)
	}
	if got := a.InUse(); got != 64 {
		t.Errorf("InUse = %d, want 64", got)
	}

	if _, err := a.Free(r1.Offset); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if got := a.InUse(); got != 0 {
		t.Errorf("InUse after free = %d, want 0", got)
	}
}

func TestAlloc_CoalescesOnFree(t *testing.T) {
	a, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	r1, _ := a.Alloc(256, 8)
	r2, _ := a.Alloc(256, 8)
	r3, _ := a.Alloc(256, 8)

	if _, err := a.Free(r2.Offset); err != nil {
		t.Fatalf("Free r2: %v", err)
	}
	if _, err := a.Free(r1.Offset); err != nil {
		t.Fatalf("Free r1: %v", err)
	}
	if _, err := a.Free(r3.Offset); err != nil {
		t.Fatalf("Free r3: %v", err)
	}

	big, err := a.Alloc(4096, 8)
	if err != nil {
		t.Fatalf("Alloc after coalescing should succeed, got: %v", err)
	}
	if big.Offset != 0 || big.Size != 4096 {
		t.Errorf("coalesced alloc = %+v, want full arena", big)
	}
}

func TestAlloc_ArenaFull(t *testing.T) {
	a, err := New(128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := a.Alloc(128, 8); err != nil {
		t.Fatalf("Alloc(128): %v", err)
	}
	if _, err := a.Alloc(1, 8); err != ErrArenaFull {
		t.Errorf("Alloc over capacity = %v, want ErrArenaFull", err)
	}
}

func TestFree_DoubleFreeRejected(t *testing.T) {
	a, err := New(128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	r, _ := a.Alloc(16, 8)
	if _, err := a.Free(r.Offset); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	if _, err := a.Free(r.Offset); err != ErrNotAllocated {
		t.Errorf("double Free = %v, want ErrNotAllocated", err)
	}
}

func TestBytes_RoundTrip(t *testing.T) {
	a, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	r, err := a.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	b := a.Bytes(r)
	copy(b, []byte("0123456789abcdef"))
	if string(a.Bytes(r)) != "0123456789abcdef" {
		t.Errorf("Bytes round trip mismatch: %q", a.Bytes(r))
	}
}

func TestAlloc_Alignment(t *testing.T) {
	a, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := a.Alloc(3, 8); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	r2, err := a.Alloc(16, 16)
	if err != nil {
		t.Fatalf("Alloc aligned: %v", err)
	}
	if r2.Offset%16 != 0 {
		t.Errorf("offset %d not aligned to 16", r2.Offset)
	}
}

func TestFree_ClearOnFreeZeroesPayload(t *testing.T) {
	a, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	r, err := a.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	copy(a.Bytes(r), []byte("0123456789abcdef"))
	if err := a.SetInfo(r.Offset, AllocationInfo{ClearOnFree: true}); err != nil {
		t.Fatalf("SetInfo: %v", err)
	}

	if _, err := a.Free(r.Offset); err != nil {
		t.Fatalf("Free: %v", err)
	}

	r2, err := a.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc after free: %v", err)
	}
	for i, b := range a.Bytes(r2) {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 after ClearOnFree", i, b)
		}
	}
}

func TestFree_ReturnsAttachedInfo(t *testing.T) {
	a, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	r, err := a.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	marker := new(int)
	if err := a.SetInfo(r.Offset, AllocationInfo{OnewayNode: marker}); err != nil {
		t.Fatalf("SetInfo: %v", err)
	}

	info, err := a.Free(r.Offset)
	if err != nil {
		t.Fatalf("Free: %v", err)
	}
	if info.OnewayNode != interface{}(marker) {
		t.Errorf("Free returned OnewayNode %v, want %v", info.OnewayNode, marker)
	}
}
