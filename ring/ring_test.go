package ring

import "testing"

import "github.com/stretchr/testify/assert"

func TestBufferPushPopOrder(t *testing.T) {
	b := NewBuffer[int](4)
	assert.True(t, b.Push(1))
	assert.True(t, b.Push(2))
	assert.True(t, b.Push(3))
	assert.True(t, b.Push(4))
	assert.False(t, b.Push(5), "ring at capacity must reject further pushes")

	v, ok := b.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, b.Push(5))

	for _, want := range []int{2, 3, 4, 5} {
		v, ok := b.Pop()
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok = b.Pop()
	assert.False(t, ok)
}

func TestBufferPushNPopN(t *testing.T) {
	b := NewBuffer[int](3)
	n := b.PushN([]int{1, 2, 3, 4})
	assert.Equal(t, 3, n, "PushN must stop at capacity")

	dst := make([]int, 5)
	got := b.PopN(dst)
	assert.Equal(t, 3, got)
	assert.Equal(t, []int{1, 2, 3}, dst[:got])
}

func TestBufferDrain(t *testing.T) {
	b := NewBuffer[int](4)
	b.PushN([]int{1, 2, 3})
	b.Drain()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 4, b.Free())
}

func TestSlabGetPutLimit(t *testing.T) {
	s := NewSlab(2, func() *int { v := 0; return &v })

	a := s.Get()
	b := s.Get()
	assert.NotNil(t, a)
	assert.NotNil(t, b)
	assert.Nil(t, s.Get(), "slab must refuse allocation beyond its limit")

	s.Put(a)
	assert.Equal(t, 1, s.Outstanding())

	c := s.Get()
	assert.Same(t, a, c, "slab should recycle the freed buffer instead of allocating")
}
