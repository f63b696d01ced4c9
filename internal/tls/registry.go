// Package tls implements the CoW-TLS core: a process-wide registry of
// per-thread local-storage records backed by real, mmap-protected pages,
// copy-on-write semantics on first write to a shared page, and a fault
// router that attributes an illegal cross-thread touch to its culprit.
//
// It adapts biscuit's mem.Physmem_t (refcounted physical pages) and
// vm.Vm_t/Sys_pgfault (protection toggling, copy-on-write fault
// resolution, single-mutex locking discipline).
package tls

import (
	"sync"

	"cowfs/internal/pages"
	"cowfs/internal/util"
)

// ThreadID identifies the caller of a CoW-TLS operation. The thread
// scheduler that hands these out is an external collaborator (spec.md §1);
// this package never infers identity from the calling goroutine.
type ThreadID uint64

// Exiter is the external "terminate this thread" surface the fault router
// drives when it attributes a fault to a thread. A real implementation
// would be backed by the user-level scheduler's thread_exit(); tests may
// supply a recording stub.
type Exiter interface {
	ExitThread(tid ThreadID, diagnostic string)
}

// Record is a single thread's TLS region: a page-aligned, size-rounded
// sequence of page slots. Outside of an active Read/Write/Clone/Destroy
// call every page is protected Inaccessible (invariant I1).
type Record struct {
	ThreadID    ThreadID
	LogicalSize int
	Pages       []*pages.Page
}

func pageCount(size int) int {
	return util.Roundup(size, pages.Size) / pages.Size
}

// Registry is the process-wide table of live records, guarded by a single
// mutex per spec.md §5. It also maintains an immutable, atomically
// published address-range index that the fault router consults without
// taking the mutex, so a fault that arrives mid-operation can still be
// routed (spec.md §5: "the fault router does not acquire the lock").
type Registry struct {
	mu      sync.Mutex
	pool    *pages.Pool
	records map[ThreadID]*Record
	exiter  Exiter

	index atomicIndex
}

// NewRegistry constructs an empty registry. exiter may be nil, in which
// case the fault router only logs the diagnostic (useful for tests that
// just want to observe which thread would have been killed).
func NewRegistry(exiter Exiter) *Registry {
	r := &Registry{
		pool:    pages.NewPool(),
		records: make(map[ThreadID]*Record),
		exiter:  exiter,
	}
	r.index.store(nil)
	installFaultRouter()
	return r
}

// lockedRebuildIndex recomputes the address-range index. Must be called
// with r.mu held; publishes the new index atomically for the lock-free
// fault router to pick up.
func (r *Registry) lockedRebuildIndex() {
	var entries []indexEntry
	for tid, rec := range r.records {
		for _, pg := range rec.Pages {
			entries = append(entries, indexEntry{
				start: pg.Addr(),
				end:   pg.Addr() + pages.Size,
				tid:   tid,
			})
		}
	}
	r.index.store(entries)
}

// lockedProtectAll sets the protection mode of every page in rec.
func (r *Registry) lockedProtectAll(rec *Record, mode pages.ProtMode) error {
	for _, pg := range rec.Pages {
		if err := r.pool.Protect(pg, mode); err != nil {
			return err
		}
	}
	return nil
}
