package goblinder

import "github.com/goblinder/goblinder/internal/uapi"

// Re-exported wire-level limits, kept alongside the public API the way
// go-ublk re-exports its internal/constants package.
const (
	MaxBufferArenaSize = uapi.MaxBufferArenaSize
	MaxHandles         = uapi.MaxHandles
)
