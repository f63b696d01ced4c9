package fsys

import "cowfs/internal/util"

// dirEntry is one slot of the fixed, flat root directory: a name and the
// inode it names. It adapts fs.Dirdata_t as referenced at
// biscuit/src/ufs/ufs.go:205, dropping the parent pointer since there is
// only ever one directory.
type dirEntry struct {
	InUse      bool
	Name       string
	InodeIndex int
}

// directory is the whole root directory table, cached in memory while
// mounted.
type directory struct {
	raw   []byte
	dirty bool
}

func newDirectory(nblocks int) *directory {
	return &directory{raw: make([]byte, nblocks*BlockSize)}
}

func (dt *directory) offset(idx int) int { return idx * direntDiskSize }

// nameFieldSize leaves one byte for a null terminator after MaxName
// bytes of name, and one byte each for InUse and InodeIndex.
const nameFieldSize = MaxName + 1

func (dt *directory) get(idx int) dirEntry {
	d := dt.raw[dt.offset(idx):]
	var e dirEntry
	e.InUse = util.Readn(d, 1, 0) != 0
	e.InodeIndex = util.Readn(d, 1, 1)
	nameBytes := d[2 : 2+nameFieldSize]
	n := 0
	for n < len(nameBytes) && nameBytes[n] != 0 {
		n++
	}
	e.Name = string(nameBytes[:n])
	return e
}

func (dt *directory) set(idx int, e dirEntry) {
	d := dt.raw[dt.offset(idx):]
	inUse := 0
	if e.InUse {
		inUse = 1
	}
	util.Writen(d, 1, 0, inUse)
	util.Writen(d, 1, 1, e.InodeIndex)
	nameBytes := d[2 : 2+nameFieldSize]
	for i := range nameBytes {
		nameBytes[i] = 0
	}
	copy(nameBytes, e.Name)
	dt.dirty = true
}

func (dt *directory) free(idx int) {
	dt.set(idx, dirEntry{})
}
