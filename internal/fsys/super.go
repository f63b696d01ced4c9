package fsys

import "cowfs/internal/util"

// superblock is the on-disk layout descriptor stored in block 0. It adapts
// biscuit's fs.Superblock_t: a handful of small integer fields packed into
// a block's worth of bytes and accessed through index-based field
// read/write helpers (fieldr/fieldw there, util.Readn/Writen here) rather
// than a struct cast, so the on-disk layout is explicit. Fields are stored
// in the host's byte order, which is what util.Readn/Writen read and write.
//
// Only the four fields spec.md §3.1 names are persisted. The root
// directory's on-disk location is not a fifth stored field: with MaxFiles
// fixed at compile time, its block range is a deterministic function of
// the inode table's (see dirBlockOffset), the same way spec.md treats
// MaxFiles/MaxFds as compile-time constants rather than superblock fields.
type superblock struct {
	data  [BlockSize]byte
	dirty bool
}

const (
	sbBitmapBlockCount = iota
	sbBitmapBlockOffset
	sbInodeBlockCount
	sbInodeBlockOffset
)

func fieldr(d []byte, i int) int {
	return util.Readn(d, 4, i*4)
}

func fieldw(d []byte, i int, v int) {
	util.Writen(d, 4, i*4, v)
}

func (sb *superblock) BitmapBlockCount() int  { return fieldr(sb.data[:], sbBitmapBlockCount) }
func (sb *superblock) BitmapBlockOffset() int { return fieldr(sb.data[:], sbBitmapBlockOffset) }
func (sb *superblock) InodeBlockCount() int   { return fieldr(sb.data[:], sbInodeBlockCount) }
func (sb *superblock) InodeBlockOffset() int  { return fieldr(sb.data[:], sbInodeBlockOffset) }

func (sb *superblock) SetBitmapBlockCount(v int) {
	fieldw(sb.data[:], sbBitmapBlockCount, v)
	sb.dirty = true
}

func (sb *superblock) SetBitmapBlockOffset(v int) {
	fieldw(sb.data[:], sbBitmapBlockOffset, v)
	sb.dirty = true
}

func (sb *superblock) SetInodeBlockCount(v int) {
	fieldw(sb.data[:], sbInodeBlockCount, v)
	sb.dirty = true
}

func (sb *superblock) SetInodeBlockOffset(v int) {
	fieldw(sb.data[:], sbInodeBlockOffset, v)
	sb.dirty = true
}

// dirBlockOffset returns the first block of the root directory region,
// which immediately follows the inode table.
func (sb *superblock) dirBlockOffset() int {
	return sb.InodeBlockOffset() + sb.InodeBlockCount()
}

// dirBlockCount is fixed by MaxFiles/direntDiskSize, both compile-time
// constants.
func dirBlockCount() int {
	return util.Roundup(MaxFiles*direntDiskSize, BlockSize) / BlockSize
}

// dataBlockStart is the first block available for file data and indirect
// pointer blocks.
func (sb *superblock) dataBlockStart() int {
	return sb.dirBlockOffset() + dirBlockCount()
}
