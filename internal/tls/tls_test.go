package tls

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExiter struct {
	mu      sync.Mutex
	exited  []ThreadID
	reasons []string
}

func (e *recordingExiter) ExitThread(tid ThreadID, diagnostic string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exited = append(e.exited, tid)
	e.reasons = append(e.reasons, diagnostic)
}

func (e *recordingExiter) exitedAny(tid ThreadID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.exited {
		if t == tid {
			return true
		}
	}
	return false
}

func newTestRegistry() (*Registry, *recordingExiter) {
	ex := &recordingExiter{}
	return NewRegistry(ex), ex
}

func TestCreateDuplicateFails(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Create(1, 100))
	assert.ErrorIs(t, r.Create(1, 100), ErrAlreadyExists)
}

func TestReadWriteRoundTrip(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Create(1, 5000))

	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, r.Write(1, 0, len(data), data))

	out := make([]byte, len(data))
	require.NoError(t, r.Read(1, 0, len(out), out))
	assert.Equal(t, data, out)
}

func TestReadWriteBoundsChecked(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Create(1, 100))
	buf := make([]byte, 10)
	// Bounds are the record's whole pages (one 4096-byte page here), not
	// its logical size.
	assert.ErrorIs(t, r.Read(1, 4090, 10, buf), ErrBounds)
	assert.ErrorIs(t, r.Write(1, 4090, 10, buf), ErrBounds)
}

func TestOperationsRequireRecord(t *testing.T) {
	r, _ := newTestRegistry()
	buf := make([]byte, 4)
	assert.ErrorIs(t, r.Read(7, 0, 4, buf), ErrNoRecord)
	assert.ErrorIs(t, r.Write(7, 0, 4, buf), ErrNoRecord)
	assert.ErrorIs(t, r.Destroy(7), ErrNoRecord)
}

func TestCloneIndependence(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Create(1, pagesSizeForTest()))

	orig := bytes(pagesSizeForTest(), 0xAA)
	require.NoError(t, r.Write(1, 0, len(orig), orig))

	require.NoError(t, r.Clone(2, 1))

	// B writes; A must be unaffected.
	bWrite := bytes(len(orig), 0xBB)
	require.NoError(t, r.Write(2, 0, len(bWrite), bWrite))

	aOut := make([]byte, len(orig))
	require.NoError(t, r.Read(1, 0, len(aOut), aOut))
	assert.Equal(t, orig, aOut)

	bOut := make([]byte, len(bWrite))
	require.NoError(t, r.Read(2, 0, len(bOut), bOut))
	assert.Equal(t, bWrite, bOut)

	// A writes after clone; must not be visible to B.
	aWrite := bytes(len(orig), 0xCC)
	require.NoError(t, r.Write(1, 0, len(aWrite), aWrite))
	bOut2 := make([]byte, len(bWrite))
	require.NoError(t, r.Read(2, 0, len(bOut2), bOut2))
	assert.Equal(t, bWrite, bOut2)
}

func TestCloneRejectsSelfAndDuplicates(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Create(1, 100))
	assert.ErrorIs(t, r.Clone(1, 1), ErrSelfClone)
	assert.ErrorIs(t, r.Clone(1, 1), ErrSelfClone)

	require.NoError(t, r.Clone(2, 1))
	assert.ErrorIs(t, r.Clone(2, 1), ErrAlreadyExists)

	assert.ErrorIs(t, r.Clone(3, 99), ErrNoSource)
}

func TestDestroyDoesNotLeakSharedPages(t *testing.T) {
	r, _ := newTestRegistry()
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Create(1, pagesSizeForTest()))
		require.NoError(t, r.Clone(2, 1))
		require.NoError(t, r.Destroy(1))
		// Page should still be readable through the clone.
		buf := make([]byte, 4)
		require.NoError(t, r.Read(2, 0, 4, buf))
		require.NoError(t, r.Destroy(2))
	}
}

func TestIsolationTerminatesForeignThread(t *testing.T) {
	r, ex := newTestRegistry()
	require.NoError(t, r.Create(1, pagesSizeForTest()))

	_, err := r.ProbeForeign(2, 1, 0)
	require.Error(t, err)
	assert.True(t, ex.exitedAny(2))
	assert.False(t, ex.exitedAny(1))

	// Thread 1 (the owner) continues to operate normally.
	buf := make([]byte, 4)
	assert.NoError(t, r.Read(1, 0, 4, buf))
}

func TestProbeForeignRejectsOutOfRangeOffset(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Create(1, pagesSizeForTest()))
	_, err := r.ProbeForeign(2, 1, 1<<20)
	assert.ErrorIs(t, err, ErrBounds)
}

func bytes(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func pagesSizeForTest() int {
	return 4096
}
