// Package pages manages real, mmap-backed, reference-counted physical
// pages for the CoW-TLS core. It adapts biscuit's mem.Physmem_t: there,
// physical pages are tracked by an index into a Pgs array with an atomic
// refcount; here, each page is a real anonymous mmap region (so that
// golang.org/x/sys/unix.Mprotect can make it genuinely inaccessible) with
// the same refcount discipline.
package pages

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Size is the page size used throughout the CoW-TLS core. It intentionally
// matches the file-system core's block size so a TLS page and a disk block
// reason about the same granularity, though the two cores do not share
// memory.
const Size = 4096

// ProtMode selects the access mode installed by Protect.
type ProtMode int

const (
	// Inaccessible revokes all access to a page; any touch faults.
	Inaccessible ProtMode = iota
	// ReadWrite grants full access to a page.
	ReadWrite
)

// Page is a single refcounted, mmap-backed physical page. The zero value is
// not valid; pages are only produced by Pool.Alloc.
type Page struct {
	bytes []byte
	ref   int32
}

// Addr returns the page's base address, used by the fault router to
// attribute a faulting address to the page (and thence to a thread).
func (p *Page) Addr() uintptr {
	if len(p.bytes) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&p.bytes[0]))
}

// Bytes exposes the page's backing storage. Callers must only dereference
// it while the page's protection is ReadWrite; the CoW engine is
// responsible for that invariant, not this package.
func (p *Page) Bytes() []byte {
	return p.bytes
}

// Refcnt reports the page's current reference count.
func (p *Page) Refcnt() int {
	return int(atomic.LoadInt32(&p.ref))
}

// Pool allocates and retires mmap-backed pages. A Pool has no internal
// lock: callers (the CoW-TLS registry) already serialize access to pages
// they own, mirroring how biscuit's Physmem_t pushes locking duties to its
// own internal free lists rather than to callers -- here, since pages are
// few and operations are short, the registry's single mutex covers it.
type Pool struct{}

// NewPool constructs an empty page pool.
func NewPool() *Pool {
	return &Pool{}
}

// Alloc reserves a fresh, zeroed page with ref_count=1, protection
// Inaccessible.
func (pl *Pool) Alloc() (*Page, error) {
	b, err := unix.Mmap(-1, 0, Size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("pages: mmap: %w", err)
	}
	return &Page{bytes: b, ref: 1}, nil
}

// Refup increments p's reference count. It corresponds to mem.Physmem_t.Refup.
func (pl *Pool) Refup(p *Page) {
	c := atomic.AddInt32(&p.ref, 1)
	if c <= 1 {
		panic("pages: refup on dead page")
	}
}

// Refdown decrements p's reference count and unmaps the page once the count
// reaches zero, returning true in that case. It corresponds to
// mem.Physmem_t.Refdown.
func (pl *Pool) Refdown(p *Page) (bool, error) {
	c := atomic.AddInt32(&p.ref, -1)
	if c < 0 {
		panic("pages: refdown on dead page")
	}
	if c > 0 {
		return false, nil
	}
	if err := unix.Munmap(p.bytes); err != nil {
		return true, fmt.Errorf("pages: munmap: %w", err)
	}
	return true, nil
}

// Protect toggles a page's access mode via a real mprotect(2) call, so that
// an illegal touch produces a genuine hardware fault rather than a
// logically-simulated one.
func (pl *Pool) Protect(p *Page, mode ProtMode) error {
	var prot int
	switch mode {
	case Inaccessible:
		prot = unix.PROT_NONE
	case ReadWrite:
		prot = unix.PROT_READ | unix.PROT_WRITE
	default:
		panic("pages: bad protection mode")
	}
	if err := unix.Mprotect(p.bytes, prot); err != nil {
		return fmt.Errorf("pages: mprotect: %w", err)
	}
	return nil
}
