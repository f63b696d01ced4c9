package fsys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshFS(t *testing.T) *FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, MakeFS(path))
	fs, err := Mount(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if fs != nil {
			_ = fs.Unmount()
		}
	})
	return fs
}

func TestCreateDeleteSymmetry(t *testing.T) {
	fs := freshFS(t)

	require.NoError(t, fs.Create("a"))
	assert.Equal(t, []string{"a"}, fs.ListFiles())

	require.NoError(t, fs.Delete("a"))
	assert.Empty(t, fs.ListFiles())
}

func TestCreateRejectsDuplicateAndTooLongNames(t *testing.T) {
	fs := freshFS(t)

	require.NoError(t, fs.Create("dup"))
	assert.ErrorIs(t, fs.Create("dup"), ErrNameExists)
	assert.ErrorIs(t, fs.Create("this-name-is-too-long-for-a-slot"), ErrNameTooLong)
}

func TestPersistenceAcrossMountUnmount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, MakeFS(path))

	fs, err := Mount(path)
	require.NoError(t, err)
	require.NoError(t, fs.Create("note"))
	fd, err := fs.Open("note")
	require.NoError(t, err)
	want := []byte("persisted across remount")
	n, err := fs.Write(fd, want)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	require.NoError(t, fs.Close(fd))
	require.NoError(t, fs.Unmount())

	fs2, err := Mount(path)
	require.NoError(t, err)
	defer fs2.Unmount()

	assert.Equal(t, []string{"note"}, fs2.ListFiles())
	fd2, err := fs2.Open("note")
	require.NoError(t, err)
	got := make([]byte, len(want))
	n, err = fs2.Read(fd2, got)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, got)
}

func TestWriteReadSizeExactness(t *testing.T) {
	for _, size := range []int{0, 8000, 1048576} {
		size := size
		t.Run("", func(t *testing.T) {
			fs := freshFS(t)
			require.NoError(t, fs.Create("sized"))
			fd, err := fs.Open("sized")
			require.NoError(t, err)

			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte(i)
			}
			n, err := fs.Write(fd, payload)
			require.NoError(t, err)
			require.Equal(t, size, n)

			got, err := fs.Filesize(fd)
			require.NoError(t, err)
			assert.Equal(t, size, got)

			_, err = fs.Lseek(fd, 0, 0)
			require.NoError(t, err)
			readBack := make([]byte, size)
			n, err = fs.Read(fd, readBack)
			require.NoError(t, err)
			assert.Equal(t, size, n)
			assert.Equal(t, payload, readBack)
		})
	}
}

func TestOverlappingWriteKeepsLatest(t *testing.T) {
	fs := freshFS(t)
	require.NoError(t, fs.Create("overlap"))
	fd, err := fs.Open("overlap")
	require.NoError(t, err)

	_, err = fs.Write(fd, []byte("0123456789"))
	require.NoError(t, err)
	_, err = fs.Lseek(fd, 5, 0)
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("ABCDEFGHIJ"))
	require.NoError(t, err)

	_, err = fs.Lseek(fd, 0, 0)
	require.NoError(t, err)
	got := make([]byte, 15)
	n, err := fs.Read(fd, got)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, "01234ABCDEFGHIJ", string(got))
}

func TestSixteenOneMebibyteRoundTrip(t *testing.T) {
	const chunk = 1 << 20
	const count = 16

	fs := freshFS(t)
	require.NoError(t, fs.Create("big"))
	fd, err := fs.Open("big")
	require.NoError(t, err)

	chunks := make([][]byte, count)
	for i := 0; i < count; i++ {
		buf := make([]byte, chunk)
		for j := range buf {
			buf[j] = byte(i)
		}
		chunks[i] = buf
		n, err := fs.Write(fd, buf)
		require.NoError(t, err)
		require.Equal(t, chunk, n)
	}

	size, err := fs.Filesize(fd)
	require.NoError(t, err)
	require.Equal(t, chunk*count, size)

	_, err = fs.Lseek(fd, 0, 0)
	require.NoError(t, err)
	for i := 0; i < count; i++ {
		got := make([]byte, chunk)
		n, err := fs.Read(fd, got)
		require.NoError(t, err)
		require.Equal(t, chunk, n)
		assert.Equal(t, chunks[i], got)
	}
}

func TestTruncateCannotExtend(t *testing.T) {
	fs := freshFS(t)
	require.NoError(t, fs.Create("trunc"))
	fd, err := fs.Open("trunc")
	require.NoError(t, err)
	_, err = fs.Write(fd, make([]byte, 100))
	require.NoError(t, err)

	assert.ErrorIs(t, fs.Truncate(fd, -1), ErrTooLarge)
	assert.ErrorIs(t, fs.Truncate(fd, 101), ErrTooLarge)

	require.NoError(t, fs.Truncate(fd, 99))
	size, err := fs.Filesize(fd)
	require.NoError(t, err)
	assert.Equal(t, 99, size)
}

func TestDeleteWhileOpenIsForbidden(t *testing.T) {
	fs := freshFS(t)
	require.NoError(t, fs.Create("held"))
	fd, err := fs.Open("held")
	require.NoError(t, err)

	assert.ErrorIs(t, fs.Delete("held"), ErrBusy)

	require.NoError(t, fs.Close(fd))
	assert.NoError(t, fs.Delete("held"))
}

func TestOperationsOnUnknownDescriptorFail(t *testing.T) {
	fs := freshFS(t)
	_, err := fs.Read(7, make([]byte, 1))
	assert.ErrorIs(t, err, ErrBadFd)
	_, err = fs.Write(7, make([]byte, 1))
	assert.ErrorIs(t, err, ErrBadFd)
	assert.ErrorIs(t, fs.Close(7), ErrBadFd)
}

func TestUnmountIsNotReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, MakeFS(path))
	fs, err := Mount(path)
	require.NoError(t, err)
	require.NoError(t, fs.Unmount())
	assert.ErrorIs(t, fs.Unmount(), ErrNotMounted)
}
