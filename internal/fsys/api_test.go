package fsys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalAPIGatesOnMount(t *testing.T) {
	assert.Equal(t, Fail, FsCreate("x"))
	assert.Equal(t, -1, FsOpen("x"))
	assert.Nil(t, FsListFiles())

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, MakeFS(path))
	require.Equal(t, Errno(0), MountFS(path))
	t.Cleanup(func() { UnmountFS() })

	assert.Equal(t, Fail, MountFS(path), "a second mount while one is active must fail")

	require.Equal(t, Errno(0), FsCreate("x"))
	assert.Equal(t, []string{"x"}, FsListFiles())

	fd := FsOpen("x")
	require.GreaterOrEqual(t, fd, 0)
	n := FsWrite(fd, []byte("hello"))
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, FsGetFilesize(fd))

	FsLseek(fd, 0, 0)
	got := make([]byte, 5)
	assert.Equal(t, 5, FsRead(fd, got))
	assert.Equal(t, "hello", string(got))

	require.Equal(t, Errno(0), FsClose(fd))
	require.Equal(t, Errno(0), FsDelete("x"))

	require.Equal(t, Errno(0), UnmountFS())
	assert.Equal(t, Fail, UnmountFS(), "unmounting twice must fail")
	assert.Equal(t, Fail, FsCreate("after-unmount"))
}
