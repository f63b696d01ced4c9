package pages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocRefcountAndFree(t *testing.T) {
	pl := NewPool()
	p, err := pl.Alloc()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Refcnt())

	pl.Refup(p)
	assert.Equal(t, 2, p.Refcnt())

	freed, err := pl.Refdown(p)
	require.NoError(t, err)
	assert.False(t, freed)
	assert.Equal(t, 1, p.Refcnt())

	freed, err = pl.Refdown(p)
	require.NoError(t, err)
	assert.True(t, freed)
}

func TestProtectRoundTrip(t *testing.T) {
	pl := NewPool()
	p, err := pl.Alloc()
	require.NoError(t, err)

	require.NoError(t, pl.Protect(p, ReadWrite))
	p.Bytes()[0] = 0x42
	assert.Equal(t, byte(0x42), p.Bytes()[0])

	require.NoError(t, pl.Protect(p, Inaccessible))
}
