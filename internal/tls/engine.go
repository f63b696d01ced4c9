package tls

import (
	"fmt"

	"cowfs/internal/pages"
)

// Create allocates size bytes of fresh, zeroed TLS for tid. It fails if tid
// already owns a record.
func (r *Registry) Create(tid ThreadID, size int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[tid]; ok {
		return ErrAlreadyExists
	}

	n := pageCount(size)
	rec := &Record{ThreadID: tid, LogicalSize: size}
	for i := 0; i < n; i++ {
		pg, err := r.pool.Alloc()
		if err != nil {
			// roll back partial allocation, per spec.md §7 ("failed
			// allocations roll back partial ... reservations").
			for _, p := range rec.Pages {
				r.pool.Refdown(p)
			}
			return fmt.Errorf("tls: create: %w", err)
		}
		rec.Pages = append(rec.Pages, pg)
	}
	if err := r.lockedProtectAll(rec, pages.Inaccessible); err != nil {
		for _, p := range rec.Pages {
			r.pool.Refdown(p)
		}
		return err
	}
	r.records[tid] = rec
	r.lockedRebuildIndex()
	return nil
}

// Destroy releases tid's record, dropping each page's reference count and
// freeing pages that reach zero. Unlike the original C `destroy`, which
// unconditionally unmaps every page regardless of sharing (spec.md's Open
// Questions calls this out as a bug), this consults ref_count on every
// page, so a page still shared via Clone survives.
func (r *Registry) Destroy(tid ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[tid]
	if !ok {
		return ErrNoRecord
	}
	for _, pg := range rec.Pages {
		if _, err := r.pool.Refdown(pg); err != nil {
			return fmt.Errorf("tls: destroy: %w", err)
		}
	}
	delete(r.records, tid)
	r.lockedRebuildIndex()
	return nil
}

func inBounds(rec *Record, offset, length int) bool {
	return offset >= 0 && length >= 0 && offset+length <= len(rec.Pages)*pages.Size
}

// Read copies length bytes starting at logical offset into out. Per
// spec.md §4.1, every page of the record is temporarily made readable and
// writable for the duration of the call and restored to Inaccessible on
// every exit path, regardless of the offset/length actually touched --
// mirroring vm.Vm_t's "mark the whole region, copy, restore" shape rather
// than protecting a sub-range.
func (r *Registry) Read(tid ThreadID, offset, length int, out []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[tid]
	if !ok {
		return ErrNoRecord
	}
	if !inBounds(rec, offset, length) || len(out) < length {
		return ErrBounds
	}

	if err := r.lockedProtectAll(rec, pages.ReadWrite); err != nil {
		return err
	}
	defer r.lockedProtectAll(rec, pages.Inaccessible)

	for i := 0; i < length; i++ {
		li := offset + i
		pg := rec.Pages[li/pages.Size]
		out[i] = pg.Bytes()[li%pages.Size]
	}
	return nil
}

// Write copies length bytes from in into the record starting at logical
// offset, breaking copy-on-write sharing on any page whose ref_count > 1
// before the first byte of that page is stored, per spec.md §4.1.
func (r *Registry) Write(tid ThreadID, offset, length int, in []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[tid]
	if !ok {
		return ErrNoRecord
	}
	if !inBounds(rec, offset, length) || len(in) < length {
		return ErrBounds
	}

	if err := r.lockedProtectAll(rec, pages.ReadWrite); err != nil {
		return err
	}
	defer r.lockedProtectAll(rec, pages.Inaccessible)

	broken := make(map[int]bool)
	for i := 0; i < length; i++ {
		li := offset + i
		pageIdx := li / pages.Size

		if !broken[pageIdx] {
			if err := r.breakSharing(rec, pageIdx); err != nil {
				return err
			}
			broken[pageIdx] = true
		}

		pg := rec.Pages[pageIdx]
		pg.Bytes()[li%pages.Size] = in[i]
	}
	return nil
}

// breakSharing replaces rec.Pages[idx] with a private copy if its current
// ref_count is greater than one. Must be called with r.mu held and the
// page already ReadWrite.
func (r *Registry) breakSharing(rec *Record, idx int) error {
	old := rec.Pages[idx]
	if old.Refcnt() <= 1 {
		return nil
	}
	fresh, err := r.pool.Alloc()
	if err != nil {
		return fmt.Errorf("tls: write: %w", err)
	}
	if err := r.pool.Protect(fresh, pages.ReadWrite); err != nil {
		r.pool.Refdown(fresh)
		return err
	}
	copy(fresh.Bytes(), old.Bytes())
	// old stays mapped for its other owners, and this record's closing
	// restore pass no longer reaches it, so make it Inaccessible here.
	if err := r.pool.Protect(old, pages.Inaccessible); err != nil {
		r.pool.Refdown(fresh)
		return err
	}
	if _, err := r.pool.Refdown(old); err != nil {
		return fmt.Errorf("tls: write: %w", err)
	}
	rec.Pages[idx] = fresh
	r.lockedRebuildIndex()
	return nil
}

// Clone gives tid a new record that aliases every page of other's record,
// bumping each page's reference count. It fails if tid already has a
// record, other has none, or other == tid.
func (r *Registry) Clone(tid ThreadID, other ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if other == tid {
		return ErrSelfClone
	}
	if _, ok := r.records[tid]; ok {
		return ErrAlreadyExists
	}
	src, ok := r.records[other]
	if !ok {
		return ErrNoSource
	}

	rec := &Record{ThreadID: tid, LogicalSize: src.LogicalSize}
	rec.Pages = make([]*pages.Page, len(src.Pages))
	copy(rec.Pages, src.Pages)
	for _, pg := range rec.Pages {
		r.pool.Refup(pg)
	}
	r.records[tid] = rec
	r.lockedRebuildIndex()
	return nil
}
