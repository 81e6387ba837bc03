// Package arena implements the per-process BufferArena: a single mmap'd
// region that backs every transaction payload delivered to a process,
// carved up by a first-fit free-range allocator so the kernel-equivalent
// (here, the Runtime) never copies a payload more than once.
package arena

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Range is a half-open byte range [Offset, Offset+Size) inside an Arena.
type Range struct {
	Offset uintptr
	Size   uintptr
}

func (r Range) end() uintptr { return r.Offset + r.Size }

// AllocationInfo is per-allocation metadata attached after Alloc via
// SetInfo and handed back by Free, mirroring process.rs's AllocationInfo.
// TargetNode and OnewayNode are opaque (binder.Node pointers, type-asserted
// by the caller) since this package is imported by internal/binder and
// cannot import it back.
type AllocationInfo struct {
	// TargetNode is the node this payload was delivered to, used to
	// recompute BINDER_WORK_NODE_* bookkeeping when a transaction touching
	// it is freed. Nil for a reply buffer.
	TargetNode interface{}
	// OnewayNode is set only for a oneway transaction's payload: freeing it
	// is what lets the node's next queued oneway transaction dispatch,
	// preserving per-node FIFO ordering without starving the queue.
	OnewayNode interface{}
	// ClearOnFree zeroes the payload bytes before the range is returned to
	// the free list, for transactions carrying BC_TRANSACTION's
	// TF_CLEAR_BUF flag.
	ClearOnFree bool
}

type allocation struct {
	rng  Range
	info AllocationInfo
}

// Arena is a fixed-size mmap'd region carved into allocated and free
// ranges. Allocation order follows the reference allocator: address-sorted
// first fit over the free-range list, which keeps fragmentation low for
// the same alloc/free churn pattern Binder transactions produce.
type Arena struct {
	mu     sync.Mutex
	data   []byte
	size   uintptr
	free   []Range // sorted by Offset, non-overlapping, coalesced
	allocd map[uintptr]allocation
	closed bool
}

// New mmaps an anonymous region of size bytes and returns an Arena that
// allocates out of it. size is rounded up by the caller; New does not
// page-round on its own.
func New(size uintptr) (*Arena, error) {
	if size == 0 {
		return nil, fmt.Errorf("arena: size must be > 0")
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap: %w", err)
	}
	return &Arena{
		data:   data,
		size:   size,
		free:   []Range{{Offset: 0, Size: size}},
		allocd: make(map[uintptr]allocation),
	}, nil
}

// Size returns the total arena size in bytes.
func (a *Arena) Size() uintptr { return a.size }

// Alloc reserves a range of at least size bytes, aligned to align (which
// must be a power of two), and returns its offset into the arena. It
// returns ErrArenaFull if no free range is large enough.
func (a *Arena) Alloc(size, align uintptr) (Range, error) {
	if size == 0 {
		return Range{}, fmt.Errorf("arena: alloc size must be > 0")
	}
	if align == 0 {
		align = 8
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return Range{}, ErrArenaClosed
	}
	for i, f := range a.free {
		start := alignUp(f.Offset, align)
		padded := size + (start - f.Offset)
		if padded > f.Size {
			continue
		}
		rng := Range{Offset: start, Size: size}
		a.allocd[start] = allocation{rng: rng}
		a.consumeFree(i, f, start, size)
		return rng, nil
	}
	return Range{}, ErrArenaFull
}

// consumeFree removes or shrinks free[i] to account for an allocation of
// [start, start+size) that was carved out of it, re-inserting the leading
// pad (if any from alignment) and trailing remainder as free ranges.
func (a *Arena) consumeFree(i int, f Range, start, size uintptr) {
	rest := a.free[:i]
	rest = append(rest, a.free[i+1:]...)
	a.free = rest
	if lead := start - f.Offset; lead > 0 {
		a.insertFree(Range{Offset: f.Offset, Size: lead})
	}
	if trail := f.end() - (start + size); trail > 0 {
		a.insertFree(Range{Offset: start + size, Size: trail})
	}
}

// insertFree inserts r into the free list in address order and coalesces
// it with adjacent ranges, mirroring how the reference implementation
// merges freed buffer ranges back into the arena.
func (a *Arena) insertFree(r Range) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Offset >= r.Offset })
	a.free = append(a.free, Range{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = r

	if i+1 < len(a.free) && a.free[i].end() == a.free[i+1].Offset {
		a.free[i].Size += a.free[i+1].Size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].end() == a.free[i].Offset {
		a.free[i-1].Size += a.free[i].Size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// SetInfo attaches AllocationInfo to an allocation already returned by
// Alloc, mirroring transaction.rs's set_info_target_node/
// set_info_oneway_node/set_info_clear_on_drop calls made while a
// Transaction is being constructed on top of the payload.
func (a *Arena) SetInfo(offset uintptr, info AllocationInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	alc, ok := a.allocd[offset]
	if !ok {
		return ErrNotAllocated
	}
	alc.info = info
	a.allocd[offset] = alc
	return nil
}

// Free releases a range previously returned by Alloc, returning the
// AllocationInfo it was tagged with so the caller can resolve any
// oneway-dispatch or clear-on-free follow-up. It is a no-op error to free
// an offset that is not currently allocated, reported as ErrNotAllocated
// so callers can treat a double free as a protocol violation rather than
// silently ignoring it.
func (a *Arena) Free(offset uintptr) (AllocationInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return AllocationInfo{}, ErrArenaClosed
	}
	alc, ok := a.allocd[offset]
	if !ok {
		return AllocationInfo{}, ErrNotAllocated
	}
	delete(a.allocd, offset)
	if alc.info.ClearOnFree {
		for i := alc.rng.Offset; i < alc.rng.end(); i++ {
			a.data[i] = 0
		}
	}
	a.insertFree(alc.rng)
	return alc.info, nil
}

// Bytes returns a slice view of the arena at r. The returned slice aliases
// the arena's backing memory and must not be retained past a Free of an
// overlapping range.
func (a *Arena) Bytes(r Range) []byte {
	return a.data[r.Offset : r.Offset+r.Size]
}

// InUse reports the number of bytes currently allocated.
func (a *Arena) InUse() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	var used uintptr
	for _, alc := range a.allocd {
		used += alc.rng.Size
	}
	return used
}

// Close unmaps the arena. Using the Arena after Close panics via the
// underlying slice going out of bounds; Alloc/Free return ErrArenaClosed
// instead once closed.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return unix.Munmap(a.data)
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
