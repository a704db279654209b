package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBorrowReleaseAccounting(t *testing.T) {
	p := New[int](4)
	require.Equal(t, 4, p.Capacity())
	require.Equal(t, 4, p.Available())
	require.Equal(t, 0, p.Borrowed())

	var handles []Handle
	for i := 0; i < 4; i++ {
		h, ok := p.Borrow()
		require.True(t, ok)
		handles = append(handles, h)
	}
	require.Equal(t, 0, p.Available())
	require.Equal(t, 4, p.Borrowed())

	_, ok := p.Borrow()
	require.False(t, ok, "pool should report exhaustion rather than grow")

	p.Release(handles[0])
	require.Equal(t, 1, p.Available())
	require.Equal(t, 3, p.Borrowed())

	h, ok := p.Borrow()
	require.True(t, ok)
	require.Equal(t, handles[0], h, "LIFO: most recently released handle is reused first")

	for _, h := range handles {
		p.Release(h)
	}
	require.Equal(t, p.Capacity(), p.Available())
	require.Equal(t, 0, p.Borrowed())
}

func TestBorrowedZeroed(t *testing.T) {
	p := New[[]byte](2)
	h, _ := p.Borrow()
	*p.Get(h) = []byte("hello")
	p.Release(h)

	h2, _ := p.Borrow()
	require.Nil(t, *p.Get(h2), "released record must be zeroed before reuse")
}
