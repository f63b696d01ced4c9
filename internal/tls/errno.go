package tls

import "errors"

// Errno mirrors biscuit's defs.Err_t: a small negative-on-failure integer
// threaded through the public API, backed internally by richer Go errors.
type Errno int32

// OK and Fail are the only two values the public API returns, per
// spec.md §6 ("Return 0 on success, -1 on any failure").
const (
	OK   Errno = 0
	Fail Errno = -1
)

// Sentinel errors returned by the internal (richer) API; the public
// wrappers collapse all of these to Fail.
var (
	ErrAlreadyExists = errors.New("tls: thread already has a record")
	ErrNoRecord      = errors.New("tls: no record for thread")
	ErrBounds        = errors.New("tls: offset/length out of bounds")
	ErrSelfClone     = errors.New("tls: cannot clone from self")
	ErrNoSource      = errors.New("tls: source thread has no record")
	ErrOOM           = errors.New("tls: page allocation failed")
)

func toErrno(err error) Errno {
	if err == nil {
		return OK
	}
	return Fail
}
