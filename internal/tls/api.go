package tls

// This file exposes the public CoW-TLS API named by spec.md §6
// (tls_create, tls_destroy, tls_read, tls_write, tls_clone), each
// returning 0 on success and -1 on failure, bound to a single process-wide
// Registry the way the original C API operates on a single global table.

var global = NewRegistry(nil)

// SetExiter installs the scheduler-provided thread-termination callback
// used by the fault router. Call it once during process startup; it is not
// safe to call concurrently with CoW-TLS operations.
func SetExiter(e Exiter) {
	global.exiter = e
}

// TlsCreate allocates a fresh TLS region of size bytes for tid.
func TlsCreate(tid ThreadID, size int) Errno {
	return toErrno(global.Create(tid, size))
}

// TlsDestroy releases tid's TLS region.
func TlsDestroy(tid ThreadID) Errno {
	return toErrno(global.Destroy(tid))
}

// TlsRead copies length bytes starting at offset from tid's region into out.
func TlsRead(tid ThreadID, offset, length int, out []byte) Errno {
	return toErrno(global.Read(tid, offset, length, out))
}

// TlsWrite copies length bytes from in into tid's region starting at offset.
func TlsWrite(tid ThreadID, offset, length int, in []byte) Errno {
	return toErrno(global.Write(tid, offset, length, in))
}

// TlsClone gives tid a record that aliases src's pages.
func TlsClone(tid ThreadID, src ThreadID) Errno {
	return toErrno(global.Clone(tid, src))
}
