package tls

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"cowfs/internal/pages"
)

// indexEntry maps one page's address range to the thread that owns it.
type indexEntry struct {
	start, end uintptr
	tid        ThreadID
}

// atomicIndex publishes an immutable slice of indexEntry so the fault
// router can walk it without taking the registry's mutex (design note in
// spec.md §9: "install a handler that snapshots the address and consults
// an immutable index ... rebuilt on registry change").
type atomicIndex struct {
	v atomic.Pointer[[]indexEntry]
}

func (a *atomicIndex) store(entries []indexEntry) {
	a.v.Store(&entries)
}

func (a *atomicIndex) lookup(addr uintptr) (ThreadID, bool) {
	p := a.v.Load()
	if p == nil {
		return 0, false
	}
	for _, e := range *p {
		if addr >= e.start && addr < e.end {
			return e.tid, true
		}
	}
	return 0, false
}

var faultRouterOnce sync.Once

// installFaultRouter arms debug.SetPanicOnFault once, on the goroutine that
// first constructs a Registry; the setting is per goroutine, so
// ProbeForeign also arms it on its own goroutine for the access it makes.
// With it set, a SIGSEGV/SIGBUS taken while executing ordinary (non-cgo) Go
// code on that goroutine is delivered to it as a panic whose value implements
// `interface{ Addr() uintptr }`, instead of crashing the process -- the
// pure-Go equivalent of the hardware page-fault trap spec.md §4.1 assumes.
func installFaultRouter() {
	faultRouterOnce.Do(func() {
		debug.SetPanicOnFault(true)
	})
}

type faultAddr interface {
	Addr() uintptr
}

// route dispatches a recovered fault panic: if the address belongs to a
// known TLS page, the offending thread (actor) and the page's owner are
// named in a diagnostic, the registry's Exiter is told to terminate the
// actor (with no Exiter the diagnostic is logged instead), and route
// returns true (fault handled). If the address is outside every known TLS region, route
// returns false and the caller must re-raise -- "faults outside TLS
// regions must remain fatal" (spec.md §4.1).
func (r *Registry) route(actor ThreadID, rec interface{}) (handled bool) {
	fe, ok := rec.(faultAddr)
	if !ok {
		return false
	}
	addr := fe.Addr()
	owner, ok := r.index.lookup(addr)
	if !ok {
		return false
	}
	diag := fmt.Sprintf("illegal access by thread %d to thread %d's TLS page at %#x", actor, owner, addr)
	if r.exiter != nil {
		r.exiter.ExitThread(actor, diag)
	} else {
		log.Print(diag)
	}
	return true
}

// ProbeForeign performs a raw byte read at a TLS page belonging to owner,
// on behalf of actor, without going through the owner's Read/Write API.
// Outside of an active Read/Write/Clone/Destroy call every TLS page is
// mprotect'd Inaccessible, so unless actor == owner and owner currently
// holds the page open, this either returns the byte (page was legitimately
// accessible) or triggers the fault router, which terminates actor, and
// ProbeForeign returns an error describing the fault. A fault on an
// address this registry does not own is re-panicked, matching spec.md's
// "faults outside TLS regions must remain fatal".
func (r *Registry) ProbeForeign(actor ThreadID, owner ThreadID, byteOffset int) (b byte, err error) {
	r.mu.Lock()
	rec, ok := r.records[owner]
	r.mu.Unlock()
	if !ok {
		return 0, ErrNoRecord
	}
	pageIdx := byteOffset / pages.Size
	inPage := byteOffset % pages.Size
	if pageIdx < 0 || pageIdx >= len(rec.Pages) {
		return 0, ErrBounds
	}

	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if p := recover(); p != nil {
			if r.route(actor, p) {
				err = fmt.Errorf("tls: %v", p)
				return
			}
			// Not a TLS address we know about: remains fatal.
			panic(p)
		}
	}()

	pg := rec.Pages[pageIdx]
	return pg.Bytes()[inPage], nil
}
