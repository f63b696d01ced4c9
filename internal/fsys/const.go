package fsys

import "cowfs/internal/blockdev"

// Fixed geometry and table sizes, unchanged from spec.md §6.
const (
	DiskBlocks = blockdev.DiskBlocks
	BlockSize  = blockdev.BlockSize
	MaxFiles   = 64
	MaxFds     = 32
	MaxName    = 15

	// ptrSize is the on-disk size of one block pointer (uint16, since
	// DiskBlocks=8192 fits in 13 bits); P is the number of pointers an
	// indirect block holds.
	ptrSize = 2
	P       = BlockSize / ptrSize

	// NumDirect is the count of direct block pointers an inode carries.
	NumDirect = 10

	// inodeDiskSize and direntDiskSize are on-disk record sizes, chosen so
	// MaxFiles records each fit in exactly one block (both regions are
	// single-block, fixed-offset metadata, computed rather than stored in
	// the superblock -- see DESIGN.md, "On-disk layout decision").
	inodeDiskSize  = 32
	direntDiskSize = 32
)

// maxBlockIndex is the number of file-local block indices addressable via
// direct + single-indirect + double-indirect pointers; every valid index
// is below it.
const maxBlockIndex = NumDirect + P + P*P
