package fsys

import "cowfs/internal/util"

// inodeKind distinguishes a live inode from a free slot. The file system
// only ever creates regular files (spec.md has no directory-inode
// concept; the root directory is a fixed flat table, not a file).
type inodeKind uint8

const (
	kindFree inodeKind = 0
	kindFile inodeKind = 1
)

// inode is the decoded form of one on-disk inode record: a regular
// file's size plus its direct/single-indirect/double-indirect block
// pointers. It adapts biscuit's fs.Inode_t, trimmed to what a flat
// single-directory file system needs (no link count, no directory
// pointers, no timestamps).
type inode struct {
	Kind           inodeKind
	Size           uint32
	Direct         [NumDirect]uint16
	SingleIndirect uint16
	DoubleIndirect uint16
}

// inodeTable is the full inode region, cached in memory while mounted.
type inodeTable struct {
	raw   []byte
	dirty bool
}

func newInodeTable(nblocks int) *inodeTable {
	return &inodeTable{raw: make([]byte, nblocks*BlockSize)}
}

func (t *inodeTable) offset(idx int) int { return idx * inodeDiskSize }

// Field offsets within one inodeDiskSize record. Size starts at a 4-byte
// boundary and each Direct/indirect entry at a 2-byte boundary, so no
// field ever straddles an alignment util.Readn/Writen would fault on.
const (
	fKind           = 0
	fSize           = 4
	fDirect         = 8
	fSingleIndirect = fDirect + NumDirect*2
	fDoubleIndirect = fSingleIndirect + 2
)

func (t *inodeTable) get(idx int) inode {
	d := t.raw[t.offset(idx):]
	var in inode
	in.Kind = inodeKind(util.Readn(d, 1, fKind))
	in.Size = uint32(util.Readn(d, 4, fSize))
	for i := 0; i < NumDirect; i++ {
		in.Direct[i] = uint16(util.Readn(d, 2, fDirect+i*2))
	}
	in.SingleIndirect = uint16(util.Readn(d, 2, fSingleIndirect))
	in.DoubleIndirect = uint16(util.Readn(d, 2, fDoubleIndirect))
	return in
}

func (t *inodeTable) set(idx int, in inode) {
	d := t.raw[t.offset(idx):]
	util.Writen(d, 1, fKind, int(in.Kind))
	util.Writen(d, 4, fSize, int(in.Size))
	for i := 0; i < NumDirect; i++ {
		util.Writen(d, 2, fDirect+i*2, int(in.Direct[i]))
	}
	util.Writen(d, 2, fSingleIndirect, int(in.SingleIndirect))
	util.Writen(d, 2, fDoubleIndirect, int(in.DoubleIndirect))
	t.dirty = true
}

func (t *inodeTable) free(idx int) {
	t.set(idx, inode{})
}

func (t *inodeTable) inUse(idx int) bool {
	return inodeKind(util.Readn(t.raw[t.offset(idx):], 1, fKind)) != kindFree
}
