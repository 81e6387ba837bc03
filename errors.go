package goblinder

import (
	"errors"

	"github.com/goblinder/goblinder/internal/binder"
)

// ErrCode re-exports the internal dispatch package's error categories so
// callers never need to import internal/binder directly.
type ErrCode = binder.ErrCode

const (
	ErrCodeDead           = binder.ErrCodeDead
	ErrCodeNoSuchHandle   = binder.ErrCodeNoSuchHandle
	ErrCodeInvalidCookie  = binder.ErrCodeInvalidCookie
	ErrCodeNotManager     = binder.ErrCodeNotManager
	ErrCodeNotPermitted   = binder.ErrCodeNotPermitted
	ErrCodeAlreadyManager = binder.ErrCodeAlreadyManager
	ErrCodeHandlesFull    = binder.ErrCodeHandlesFull
	ErrCodeFrozen         = binder.ErrCodeFrozen
)

// IsCode reports whether err is (or wraps) a dispatch error with the given
// code, the same shape as go-ublk's IsCode but over binder.Error.
func IsCode(err error, code ErrCode) bool {
	var be *binder.Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
