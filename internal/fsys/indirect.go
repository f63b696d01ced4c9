package fsys

import (
	"cowfs/internal/blockdev"
	"cowfs/internal/util"
)

// locate resolves a file-local block index to an absolute disk block
// number, walking direct, then single-indirect, then double-indirect
// pointers exactly as spec.md §6 describes. When allocate is true and a
// pointer along the path is unset, it allocates a fresh block and wires
// it in (extending the inode's own Direct/SingleIndirect/DoubleIndirect
// fields as needed); the caller is responsible for persisting the
// (possibly mutated) inode afterward.
func (f *FS) locate(in *inode, blockIdx int, allocate bool) (int, bool) {
	switch {
	case blockIdx < NumDirect:
		if in.Direct[blockIdx] == 0 {
			if !allocate {
				return 0, false
			}
			abs, ok := f.allocBlock()
			if !ok {
				return 0, false
			}
			in.Direct[blockIdx] = uint16(abs)
		}
		return int(in.Direct[blockIdx]), true

	case blockIdx < NumDirect+P:
		sIdx := blockIdx - NumDirect
		if in.SingleIndirect == 0 {
			if !allocate {
				return 0, false
			}
			abs, ok := f.allocBlock()
			if !ok {
				return 0, false
			}
			in.SingleIndirect = uint16(abs)
		}
		var blk [BlockSize]byte
		if err := f.disk.BlockRead(uint32(in.SingleIndirect), &blk); err != nil {
			return 0, false
		}
		ptr := getPtr(blk[:], sIdx)
		if ptr == 0 {
			if !allocate {
				return 0, false
			}
			abs, ok := f.allocBlock()
			if !ok {
				return 0, false
			}
			setPtr(blk[:], sIdx, abs)
			if err := f.disk.BlockWrite(uint32(in.SingleIndirect), &blk); err != nil {
				return 0, false
			}
			ptr = abs
		}
		return ptr, true

	case blockIdx < maxBlockIndex:
		dIdx := blockIdx - NumDirect - P
		outer := dIdx / P
		inner := dIdx % P
		if in.DoubleIndirect == 0 {
			if !allocate {
				return 0, false
			}
			abs, ok := f.allocBlock()
			if !ok {
				return 0, false
			}
			in.DoubleIndirect = uint16(abs)
		}
		var outerBlk [BlockSize]byte
		if err := f.disk.BlockRead(uint32(in.DoubleIndirect), &outerBlk); err != nil {
			return 0, false
		}
		singleAbs := getPtr(outerBlk[:], outer)
		if singleAbs == 0 {
			if !allocate {
				return 0, false
			}
			abs, ok := f.allocBlock()
			if !ok {
				return 0, false
			}
			setPtr(outerBlk[:], outer, abs)
			if err := f.disk.BlockWrite(uint32(in.DoubleIndirect), &outerBlk); err != nil {
				return 0, false
			}
			singleAbs = abs
		}
		var innerBlk [BlockSize]byte
		if err := f.disk.BlockRead(uint32(singleAbs), &innerBlk); err != nil {
			return 0, false
		}
		ptr := getPtr(innerBlk[:], inner)
		if ptr == 0 {
			if !allocate {
				return 0, false
			}
			abs, ok := f.allocBlock()
			if !ok {
				return 0, false
			}
			setPtr(innerBlk[:], inner, abs)
			if err := f.disk.BlockWrite(uint32(singleAbs), &innerBlk); err != nil {
				return 0, false
			}
			ptr = abs
		}
		return ptr, true

	default:
		return 0, false
	}
}

// clearPointer zeroes the pointer that resolves blockIdx, without
// deallocating the indirect meta-blocks that hold it (only the leaf data
// block, already freed by the caller, goes back to the bitmap).
func (f *FS) clearPointer(in *inode, blockIdx int) {
	switch {
	case blockIdx < NumDirect:
		in.Direct[blockIdx] = 0

	case blockIdx < NumDirect+P:
		if in.SingleIndirect == 0 {
			return
		}
		var blk [BlockSize]byte
		if err := f.disk.BlockRead(uint32(in.SingleIndirect), &blk); err != nil {
			return
		}
		setPtr(blk[:], blockIdx-NumDirect, 0)
		f.disk.BlockWrite(uint32(in.SingleIndirect), &blk)

	default:
		if in.DoubleIndirect == 0 {
			return
		}
		dIdx := blockIdx - NumDirect - P
		outer, inner := dIdx/P, dIdx%P
		var outerBlk [BlockSize]byte
		if err := f.disk.BlockRead(uint32(in.DoubleIndirect), &outerBlk); err != nil {
			return
		}
		singleAbs := getPtr(outerBlk[:], outer)
		if singleAbs == 0 {
			return
		}
		var innerBlk [BlockSize]byte
		if err := f.disk.BlockRead(uint32(singleAbs), &innerBlk); err != nil {
			return
		}
		setPtr(innerBlk[:], inner, 0)
		f.disk.BlockWrite(uint32(singleAbs), &innerBlk)
	}
}

// freeUnusedContainers releases indirect/double-indirect meta-blocks that
// newBlockCount no longer needs, per the conservative truncate contract
// of freeing the whole chain once a file shrinks back into a lower
// tier (original_source's fs.c truncate frees the indirect block once
// new_block_count <= NDIRECT, and the double-indirect block once it no
// longer reaches into that tier). Leaf data blocks the chain pointed to
// are already freed by the caller before this runs.
func (f *FS) freeUnusedContainers(in *inode, newBlockCount int) {
	if newBlockCount <= NumDirect+P && in.DoubleIndirect != 0 {
		var outerBlk [BlockSize]byte
		f.disk.BlockRead(uint32(in.DoubleIndirect), &outerBlk)
		for o := 0; o < P; o++ {
			if singleAbs := getPtr(outerBlk[:], o); singleAbs != 0 {
				f.bm.clear(singleAbs)
			}
		}
		f.bm.clear(int(in.DoubleIndirect))
		in.DoubleIndirect = 0
	}
	if newBlockCount <= NumDirect && in.SingleIndirect != 0 {
		f.bm.clear(int(in.SingleIndirect))
		in.SingleIndirect = 0
	}
}

// freeInodeBlocks releases every block an inode owns, including its
// indirect and double-indirect meta-blocks, back to the bitmap. Used on
// delete, where (unlike truncate) nothing of the file survives.
func (f *FS) freeInodeBlocks(in inode) {
	for _, p := range in.Direct {
		if p != 0 {
			f.bm.clear(int(p))
		}
	}
	if in.SingleIndirect != 0 {
		var blk [BlockSize]byte
		f.disk.BlockRead(uint32(in.SingleIndirect), &blk)
		for i := 0; i < P; i++ {
			if ptr := getPtr(blk[:], i); ptr != 0 {
				f.bm.clear(ptr)
			}
		}
		f.bm.clear(int(in.SingleIndirect))
	}
	if in.DoubleIndirect != 0 {
		var outerBlk [BlockSize]byte
		f.disk.BlockRead(uint32(in.DoubleIndirect), &outerBlk)
		for o := 0; o < P; o++ {
			singleAbs := getPtr(outerBlk[:], o)
			if singleAbs == 0 {
				continue
			}
			var innerBlk [BlockSize]byte
			f.disk.BlockRead(uint32(singleAbs), &innerBlk)
			for i := 0; i < P; i++ {
				if ptr := getPtr(innerBlk[:], i); ptr != 0 {
					f.bm.clear(ptr)
				}
			}
			f.bm.clear(singleAbs)
		}
		f.bm.clear(int(in.DoubleIndirect))
	}
}

// allocBlock finds the lowest-numbered free block at or past the data
// region, marks it used, and zero-fills it so newly addressed indirect
// pointer tables read as all-unset.
func (f *FS) allocBlock() (int, bool) {
	abs := f.bm.findFree(f.sb.dataBlockStart(), blockdev.DiskBlocks)
	if abs < 0 {
		return 0, false
	}
	f.bm.set(abs)
	var zero [BlockSize]byte
	if err := f.disk.BlockWrite(uint32(abs), &zero); err != nil {
		f.bm.clear(abs)
		return 0, false
	}
	return abs, true
}

func getPtr(blk []byte, idx int) int {
	return util.Readn(blk, ptrSize, idx*ptrSize)
}

func setPtr(blk []byte, idx int, v int) {
	util.Writen(blk, ptrSize, idx*ptrSize, v)
}
