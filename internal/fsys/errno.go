package fsys

import "errors"

// Errno mirrors the file-system core's spec.md §6 contract: every
// integer-returning public operation is non-negative on success, -1 on
// failure. Like package tls, richer errors are used internally and
// collapsed to Errno only at the public boundary.
type Errno int32

const Fail Errno = -1

var (
	ErrNameTooLong    = errors.New("fsys: name too long")
	ErrNameExists     = errors.New("fsys: name already exists")
	ErrNotFound       = errors.New("fsys: no such file")
	ErrInodeTableFull = errors.New("fsys: inode table full")
	ErrDirFull        = errors.New("fsys: directory full")
	ErrFdTableFull    = errors.New("fsys: descriptor table full")
	ErrBadFd          = errors.New("fsys: bad descriptor")
	ErrBusy           = errors.New("fsys: file still open")
	ErrBounds         = errors.New("fsys: offset out of bounds")
	ErrTooLarge       = errors.New("fsys: truncate cannot extend a file")
	ErrNoSpace        = errors.New("fsys: disk full")
	ErrNotMounted     = errors.New("fsys: not mounted")
	ErrAlreadyMounted = errors.New("fsys: already mounted")
)
