package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_PushAndValues(t *testing.T) {
	r := New[int](3)

	assert.Equal(t, 0, r.Len())
	_, ok := r.Oldest()
	assert.False(t, ok)

	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{1, 2}, r.Values())
	assert.False(t, r.Full())

	r.Push(3)
	assert.True(t, r.Full())

	// Overwrites the oldest element once full.
	r.Push(4)
	assert.Equal(t, []int{2, 3, 4}, r.Values())
	assert.Equal(t, 3, r.Len())

	oldest, ok := r.Oldest()
	assert.True(t, ok)
	assert.Equal(t, 2, oldest)
}

func TestRing_Do(t *testing.T) {
	r := New[string](2)
	r.Push("a")
	r.Push("b")
	r.Push("c")

	var got []string
	r.Do(func(s string) { got = append(got, s) })
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestRing_ZeroCapacityClamped(t *testing.T) {
	r := New[int](0)
	r.Push(7)
	assert.Equal(t, 1, r.Cap())
	assert.Equal(t, []int{7}, r.Values())
}
