package fsys

import "sync"

// Package-level handle to the one mounted file system, mirroring the way
// package tls exposes a single global registry behind thread-ID-keyed
// calls. A single mounted volume is all spec.md's external interface
// ever assumes.
var (
	globalMu sync.Mutex
	global   *FS
)

// MountFS mounts the disk image at path as the active file system.
func MountFS(path string) Errno {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return Fail
	}
	fs, err := Mount(path)
	if err != nil {
		return Fail
	}
	global = fs
	return 0
}

// UnmountFS flushes and closes the active file system.
func UnmountFS() Errno {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		return Fail
	}
	err := global.Unmount()
	global = nil
	if err != nil {
		return Fail
	}
	return 0
}

func withFS[T any](fail T, fn func(*FS) (T, error)) T {
	globalMu.Lock()
	fs := global
	globalMu.Unlock()

	if fs == nil {
		return fail
	}
	v, err := fn(fs)
	if err != nil {
		return fail
	}
	return v
}

// FsCreate creates a new, empty file named name.
func FsCreate(name string) Errno {
	return withFS(Fail, func(fs *FS) (Errno, error) {
		if err := fs.Create(name); err != nil {
			return Fail, err
		}
		return 0, nil
	})
}

// FsDelete removes the file named name.
func FsDelete(name string) Errno {
	return withFS(Fail, func(fs *FS) (Errno, error) {
		if err := fs.Delete(name); err != nil {
			return Fail, err
		}
		return 0, nil
	})
}

// FsOpen returns a descriptor for the file named name, or -1.
func FsOpen(name string) int {
	return withFS(-1, func(fs *FS) (int, error) {
		return fs.Open(name)
	})
}

// FsClose releases fd.
func FsClose(fd int) Errno {
	return withFS(Fail, func(fs *FS) (Errno, error) {
		if err := fs.Close(fd); err != nil {
			return Fail, err
		}
		return 0, nil
	})
}

// FsRead reads into buf from fd's current offset, returning the byte
// count read or -1.
func FsRead(fd int, buf []byte) int {
	return withFS(-1, func(fs *FS) (int, error) {
		return fs.Read(fd, buf)
	})
}

// FsWrite writes buf at fd's current offset, returning the byte count
// written or -1.
func FsWrite(fd int, buf []byte) int {
	return withFS(-1, func(fs *FS) (int, error) {
		return fs.Write(fd, buf)
	})
}

// FsLseek repositions fd's offset, returning the new offset or -1.
func FsLseek(fd int, offset int, whence int) int {
	return withFS(-1, func(fs *FS) (int, error) {
		return fs.Lseek(fd, offset, whence)
	})
}

// FsTruncate shrinks fd's file to size.
func FsTruncate(fd int, size int) Errno {
	return withFS(Fail, func(fs *FS) (Errno, error) {
		if err := fs.Truncate(fd, size); err != nil {
			return Fail, err
		}
		return 0, nil
	})
}

// FsGetFilesize returns fd's current file size, or -1.
func FsGetFilesize(fd int) int {
	return withFS(-1, func(fs *FS) (int, error) {
		return fs.Filesize(fd)
	})
}

// FsListFiles returns the names of every file in the active file system,
// or nil if none is mounted.
func FsListFiles() []string {
	globalMu.Lock()
	fs := global
	globalMu.Unlock()

	if fs == nil {
		return nil
	}
	return fs.ListFiles()
}
