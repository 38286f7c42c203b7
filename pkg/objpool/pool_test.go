package objpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type blob struct {
	N int
}

func TestGetPutReuse(t *testing.T) {
	p := New[blob](2)
	a := p.Get()
	a.N = 42
	require.NoError(t, p.Put(a))

	b := p.Get()
	require.Same(t, a, b)
	require.Zero(t, b.N, "Put must zero the block before reuse")
}

func TestGrowsOnExhaustion(t *testing.T) {
	p := New[blob](2)
	first := p.Get()
	second := p.Get()
	require.NotSame(t, first, second)
	require.Equal(t, 2, p.Cap())

	third := p.Get() // exhausts the first block, grows a new one
	require.Equal(t, 4, p.Cap())
	require.NotNil(t, third)
}

func TestPutForeignPointerErrors(t *testing.T) {
	p := New[blob](1)
	foreign := &blob{}
	require.ErrorIs(t, p.Put(foreign), ErrForeign)
}

func TestPutNilIsNoop(t *testing.T) {
	p := New[blob](1)
	require.NoError(t, p.Put(nil))
}
