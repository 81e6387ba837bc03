package arena

import "errors"

var (
	// ErrArenaFull is returned when no free range satisfies an allocation.
	ErrArenaFull = errors.New("arena: no free range large enough")
	// ErrNotAllocated is returned by Free for an offset not currently allocated.
	ErrNotAllocated = errors.New("arena: offset not allocated")
	// ErrArenaClosed is returned by Alloc/Free after Close.
	ErrArenaClosed = errors.New("arena: closed")
)
