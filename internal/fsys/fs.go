// Package fsys implements the on-disk indexed file system described in
// spec.md §6: a single flat directory of at most MaxFiles regular files,
// each addressed through a direct/single-indirect/double-indirect block
// map, backed by a fixed-geometry block device (package blockdev).
//
// It is grounded on biscuit's ufs.Ufs_t, fs package (fs.Inode_t,
// fs.Superblock_t) and mkfs/mkfs.go for the on-disk layout, adapted from
// a concurrent, cached, multi-directory kernel file system down to the
// single-mutex, single-directory, no-write-back-cache shape spec.md
// calls for.
package fsys

import (
	"fmt"
	"sync"

	"cowfs/internal/blockdev"
	"cowfs/internal/util"
)

const (
	blockSuper = 0
	blockBase  = 1 // bitmap starts immediately after the superblock
)

// FS is the mounted file system. All operations take FS.mu, matching
// biscuit's Vm_t.Lock_pmap pattern of one mutex guarding an entire
// subsystem rather than per-structure locks.
type FS struct {
	mu     sync.Mutex
	disk   blockdev.Disk
	sb     *superblock
	bm     *bitmap
	inodes *inodeTable
	dir    *directory
	fds    fdTable

	mounted bool
}

func bitmapBlockCount() int {
	bitmapBytes := util.Roundup(blockdev.DiskBlocks, 8) / 8
	return util.Roundup(bitmapBytes, BlockSize) / BlockSize
}

func inodeBlockCount() int {
	return util.Roundup(MaxFiles*inodeDiskSize, BlockSize) / BlockSize
}

// MakeFS formats a fresh disk image at path with an empty file system:
// zeroed bitmap (metadata blocks marked allocated), empty inode table,
// empty root directory. It adapts biscuit's mkfs/mkfs.go, which performs
// the equivalent one-shot layout write before any mount.
func MakeFS(path string) error {
	fd, err := blockdev.MakeDisk(path)
	if err != nil {
		return err
	}
	defer fd.Close()

	sb := &superblock{}
	sb.SetBitmapBlockOffset(blockBase)
	sb.SetBitmapBlockCount(bitmapBlockCount())
	sb.SetInodeBlockOffset(blockBase + bitmapBlockCount())
	sb.SetInodeBlockCount(inodeBlockCount())

	bm := newBitmap(blockdev.DiskBlocks)
	metaBlocks := blockBase + bitmapBlockCount() + inodeBlockCount() + dirBlockCount()
	for i := 0; i < metaBlocks; i++ {
		bm.set(i)
	}

	inodes := newInodeTable(inodeBlockCount())
	dir := newDirectory(dirBlockCount())

	if err := writeRegion(fd, blockSuper, 1, sb.data[:]); err != nil {
		return err
	}
	if err := writeRegion(fd, sb.BitmapBlockOffset(), sb.BitmapBlockCount(), bm.bits); err != nil {
		return err
	}
	if err := writeRegion(fd, sb.InodeBlockOffset(), sb.InodeBlockCount(), inodes.raw); err != nil {
		return err
	}
	if err := writeRegion(fd, sb.dirBlockOffset(), dirBlockCount(), dir.raw); err != nil {
		return err
	}
	return nil
}

func writeRegion(d blockdev.Disk, startBlock, count int, data []byte) error {
	for i := 0; i < count; i++ {
		var buf [BlockSize]byte
		lo := i * BlockSize
		hi := lo + BlockSize
		if lo < len(data) {
			if hi > len(data) {
				hi = len(data)
			}
			copy(buf[:], data[lo:hi])
		}
		if err := d.BlockWrite(uint32(startBlock+i), &buf); err != nil {
			return err
		}
	}
	return nil
}

func readRegion(d blockdev.Disk, startBlock, count int, data []byte) error {
	for i := 0; i < count; i++ {
		var buf [BlockSize]byte
		if err := d.BlockRead(uint32(startBlock+i), &buf); err != nil {
			return err
		}
		lo := i * BlockSize
		hi := lo + BlockSize
		if lo >= len(data) {
			continue
		}
		if hi > len(data) {
			hi = len(data)
		}
		copy(data[lo:hi], buf[:])
	}
	return nil
}

// Mount opens an existing disk image and loads its metadata into memory.
func Mount(path string) (*FS, error) {
	disk, err := blockdev.OpenDisk(path)
	if err != nil {
		return nil, err
	}

	sb := &superblock{}
	var sbBuf [BlockSize]byte
	if err := disk.BlockRead(blockSuper, &sbBuf); err != nil {
		disk.Close()
		return nil, fmt.Errorf("fsys: read superblock: %w", err)
	}
	sb.data = sbBuf

	bm := newBitmap(blockdev.DiskBlocks)
	if err := readRegion(disk, sb.BitmapBlockOffset(), sb.BitmapBlockCount(), bm.bits); err != nil {
		disk.Close()
		return nil, err
	}

	inodes := newInodeTable(sb.InodeBlockCount())
	if err := readRegion(disk, sb.InodeBlockOffset(), sb.InodeBlockCount(), inodes.raw); err != nil {
		disk.Close()
		return nil, err
	}

	dir := newDirectory(dirBlockCount())
	if err := readRegion(disk, sb.dirBlockOffset(), dirBlockCount(), dir.raw); err != nil {
		disk.Close()
		return nil, err
	}

	return &FS{
		disk:    disk,
		sb:      sb,
		bm:      bm,
		inodes:  inodes,
		dir:     dir,
		mounted: true,
	}, nil
}

// Unmount flushes dirty metadata to disk and closes the underlying
// device. A file system with open descriptors still unmounts: there is
// no notion of a descriptor surviving the process, only of file contents
// surviving the file system (spec.md's Persistence property binds only
// the latter).
func (f *FS) Unmount() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.mounted {
		return ErrNotMounted
	}

	if f.sb.dirty {
		var buf [BlockSize]byte
		copy(buf[:], f.sb.data[:])
		if err := f.disk.BlockWrite(blockSuper, &buf); err != nil {
			return err
		}
	}
	if f.bm.dirty {
		if err := writeRegion(f.disk, f.sb.BitmapBlockOffset(), f.sb.BitmapBlockCount(), f.bm.bits); err != nil {
			return err
		}
	}
	if f.inodes.dirty {
		if err := writeRegion(f.disk, f.sb.InodeBlockOffset(), f.sb.InodeBlockCount(), f.inodes.raw); err != nil {
			return err
		}
	}
	if f.dir.dirty {
		if err := writeRegion(f.disk, f.sb.dirBlockOffset(), dirBlockCount(), f.dir.raw); err != nil {
			return err
		}
	}

	f.mounted = false
	return f.disk.Close()
}

func (f *FS) findByName(name string) (int, dirEntry, bool) {
	for i := 0; i < MaxFiles; i++ {
		e := f.dir.get(i)
		if e.InUse && e.Name == name {
			return i, e, true
		}
	}
	return -1, dirEntry{}, false
}

// Create adds a new, empty regular file named name.
func (f *FS) Create(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(name) == 0 || len(name) > MaxName {
		return ErrNameTooLong
	}
	if _, _, ok := f.findByName(name); ok {
		return ErrNameExists
	}

	inodeIdx := -1
	for i := 0; i < MaxFiles; i++ {
		if !f.inodes.inUse(i) {
			inodeIdx = i
			break
		}
	}
	if inodeIdx < 0 {
		return ErrInodeTableFull
	}

	direIdx := -1
	for i := 0; i < MaxFiles; i++ {
		if !f.dir.get(i).InUse {
			direIdx = i
			break
		}
	}
	if direIdx < 0 {
		return ErrDirFull
	}

	f.inodes.set(inodeIdx, inode{Kind: kindFile})
	f.dir.set(direIdx, dirEntry{InUse: true, Name: name, InodeIndex: inodeIdx})
	return nil
}

// Delete removes a file by name. A still-open file cannot be deleted,
// matching spec.md's explicit "delete while open is forbidden" property.
func (f *FS) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	direIdx, e, ok := f.findByName(name)
	if !ok {
		return ErrNotFound
	}
	if f.fds.countOpen(e.InodeIndex) > 0 {
		return ErrBusy
	}

	in := f.inodes.get(e.InodeIndex)
	f.freeInodeBlocks(in)
	f.inodes.free(e.InodeIndex)
	f.dir.free(direIdx)
	return nil
}

// ListFiles returns the names of every live directory entry.
func (f *FS) ListFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	for i := 0; i < MaxFiles; i++ {
		if e := f.dir.get(i); e.InUse {
			names = append(names, e.Name)
		}
	}
	return names
}

// Open returns a descriptor for an existing file, positioned at offset 0.
func (f *FS) Open(name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, e, ok := f.findByName(name)
	if !ok {
		return -1, ErrNotFound
	}
	fd := f.fds.alloc(e.InodeIndex)
	if fd < 0 {
		return -1, ErrFdTableFull
	}
	return fd, nil
}

// Close releases a descriptor.
func (f *FS) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.fds.get(fd); !ok {
		return ErrBadFd
	}
	f.fds.free(fd)
	return nil
}

// Filesize reports the current size, in bytes, of the file behind fd.
func (f *FS) Filesize(fd int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	of, ok := f.fds.get(fd)
	if !ok {
		return -1, ErrBadFd
	}
	return int(f.inodes.get(of.InodeIndex).Size), nil
}

// Lseek repositions fd's offset. whence follows io.Seeker: 0=start,
// 1=current, 2=end.
func (f *FS) Lseek(fd int, offset int, whence int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	of, ok := f.fds.get(fd)
	if !ok {
		return -1, ErrBadFd
	}

	size := int(f.inodes.get(of.InodeIndex).Size)
	var newOff int
	switch whence {
	case 0:
		newOff = offset
	case 1:
		newOff = of.Offset + offset
	case 2:
		newOff = size + offset
	default:
		return -1, ErrBounds
	}
	if newOff < 0 || newOff > size {
		return -1, ErrBounds
	}
	of.Offset = newOff
	f.fds.set(fd, of)
	return newOff, nil
}

// Read copies up to len(buf) bytes starting at fd's current offset,
// stopping at end-of-file, and advances the offset by the amount read.
func (f *FS) Read(fd int, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	of, ok := f.fds.get(fd)
	if !ok {
		return -1, ErrBadFd
	}
	in := f.inodes.get(of.InodeIndex)
	size := int(in.Size)
	if of.Offset >= size {
		return 0, nil
	}

	n := len(buf)
	if of.Offset+n > size {
		n = size - of.Offset
	}

	read := 0
	for read < n {
		blockIdx := (of.Offset + read) / BlockSize
		inBlock := (of.Offset + read) % BlockSize
		abs, ok := f.locate(&in, blockIdx, false)
		chunk := BlockSize - inBlock
		if chunk > n-read {
			chunk = n - read
		}
		if !ok {
			// Sparse/never-written region within the logical size: zero-fill.
			for i := 0; i < chunk; i++ {
				buf[read+i] = 0
			}
		} else {
			var blk [BlockSize]byte
			if err := f.disk.BlockRead(uint32(abs), &blk); err != nil {
				return read, err
			}
			copy(buf[read:read+chunk], blk[inBlock:inBlock+chunk])
		}
		read += chunk
	}

	of.Offset += read
	f.fds.set(fd, of)
	return read, nil
}

// Write copies buf to fd's current offset, allocating and zero-filling
// blocks as needed, extends the file's size if the write reaches past
// its current end, and advances the offset by the number of bytes
// written. If no block can be allocated partway, the bytes written so far
// are kept and their count (possibly 0) is returned without an error.
func (f *FS) Write(fd int, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	of, ok := f.fds.get(fd)
	if !ok {
		return -1, ErrBadFd
	}
	in := f.inodes.get(of.InodeIndex)

	written := 0
	for written < len(buf) {
		blockIdx := (of.Offset + written) / BlockSize
		inBlock := (of.Offset + written) % BlockSize
		if blockIdx >= maxBlockIndex {
			break
		}
		abs, ok := f.locate(&in, blockIdx, true)
		if !ok {
			break
		}
		chunk := BlockSize - inBlock
		if chunk > len(buf)-written {
			chunk = len(buf) - written
		}
		var blk [BlockSize]byte
		if inBlock != 0 || chunk != BlockSize {
			if err := f.disk.BlockRead(uint32(abs), &blk); err != nil {
				return written, err
			}
		}
		copy(blk[inBlock:inBlock+chunk], buf[written:written+chunk])
		if err := f.disk.BlockWrite(uint32(abs), &blk); err != nil {
			return written, err
		}
		written += chunk
	}

	of.Offset += written
	if newSize := of.Offset; newSize > int(in.Size) {
		in.Size = uint32(newSize)
	}
	f.inodes.set(of.InodeIndex, in)
	f.fds.set(fd, of)
	return written, nil
}

// Truncate shrinks a file to size, freeing any blocks beyond it. Growing
// a file via truncate is out of scope (spec.md Non-goals): requesting a
// larger size is an error.
func (f *FS) Truncate(fd int, size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	of, ok := f.fds.get(fd)
	if !ok {
		return ErrBadFd
	}
	in := f.inodes.get(of.InodeIndex)
	if size < 0 || size > int(in.Size) {
		return ErrTooLarge
	}

	firstFreeBlock := util.Roundup(size, BlockSize) / BlockSize
	lastBlock := util.Roundup(int(in.Size), BlockSize) / BlockSize
	for bi := firstFreeBlock; bi < lastBlock; bi++ {
		if abs, ok := f.locate(&in, bi, false); ok {
			f.bm.clear(abs)
			f.clearPointer(&in, bi)
		}
	}
	f.freeUnusedContainers(&in, firstFreeBlock)

	in.Size = uint32(size)
	f.inodes.set(of.InodeIndex, in)

	if of.Offset > size {
		of.Offset = size
		f.fds.set(fd, of)
	}
	return nil
}
