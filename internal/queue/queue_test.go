package queue

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	t.Run("Order", func(t *testing.T) {
		q := NewFIFO[int]()
		for i := range 100 {
			q.Push(i)
		}
		assert.Equal(t, 100, q.Len())

		head, ok := q.Peek()
		require.True(t, ok)
		assert.Equal(t, 0, head)

		for i := range 100 {
			v, ok := q.Pop()
			require.True(t, ok)
			assert.Equal(t, i, v)
		}
		_, ok = q.Pop()
		assert.False(t, ok)
	})

	t.Run("WrapAround", func(t *testing.T) {
		q := NewFIFO[int]()
		next, want := 0, 0
		for range 50 {
			for range 7 {
				q.Push(next)
				next++
			}
			for range 5 {
				v, _ := q.Pop()
				assert.Equal(t, want, v)
				want++
			}
		}
		s := q.Slice()
		assert.Len(t, s, q.Len())
		assert.Equal(t, want, s[0])
		assert.True(t, slices.IsSorted(s))
	})

	t.Run("Reset", func(t *testing.T) {
		q := NewFIFO[string]()
		q.Push("a")
		q.Reset()
		assert.Zero(t, q.Len())
		_, ok := q.Peek()
		assert.False(t, ok)
	})
}

func TestIndexed(t *testing.T) {
	t.Run("PopOrder", func(t *testing.T) {
		h := NewIndexed[uint64](8)
		h.AddOrUpdate(1, 10)
		h.AddOrUpdate(2, 5)
		h.AddOrUpdate(3, 20)

		k, s, ok := h.Peek()
		require.True(t, ok)
		assert.Equal(t, uint64(2), k)
		assert.Equal(t, float32(5), s)

		var got []uint64
		for h.Len() > 0 {
			k, _, _ := h.Pop()
			got = append(got, k)
		}
		assert.Equal(t, []uint64{2, 1, 3}, got)
	})

	t.Run("DecreaseKey", func(t *testing.T) {
		h := NewIndexed[uint64](8)
		h.AddOrUpdate(1, 10)
		h.AddOrUpdate(2, 5)
		h.AddOrUpdate(1, 1)

		assert.Equal(t, 2, h.Len(), "keys are unique")
		s, ok := h.Score(1)
		require.True(t, ok)
		assert.Equal(t, float32(1), s)

		k, _, _ := h.Pop()
		assert.Equal(t, uint64(1), k)
		assert.False(t, h.Contains(1))
	})

	t.Run("IncreaseKey", func(t *testing.T) {
		h := NewIndexed[uint64](8)
		h.AddOrUpdate(1, 1)
		h.AddOrUpdate(2, 5)
		h.AddOrUpdate(1, 50)

		k, _, _ := h.Pop()
		assert.Equal(t, uint64(2), k)
	})

	t.Run("Remove", func(t *testing.T) {
		h := NewIndexed[uint64](8)
		for i := range uint64(10) {
			h.AddOrUpdate(i, float32(i))
		}
		assert.True(t, h.Remove(0))
		assert.True(t, h.Remove(5))
		assert.False(t, h.Remove(5))

		k, _, _ := h.Pop()
		assert.Equal(t, uint64(1), k)
		assert.Equal(t, 7, h.Len())
	})

	t.Run("Randomized", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(5, 9))
		h := NewIndexed[int](0)
		want := make(map[int]float32)
		for range 2000 {
			k := rng.IntN(300)
			s := rng.Float32() * 100
			h.AddOrUpdate(k, s)
			want[k] = s
		}
		require.Equal(t, len(want), h.Len())

		prev := float32(-1)
		for h.Len() > 0 {
			k, s, _ := h.Pop()
			assert.GreaterOrEqual(t, s, prev)
			assert.Equal(t, want[k], s)
			prev = s
		}

		h.AddOrUpdate(1, 1)
		h.Reset()
		assert.Zero(t, h.Len())
	})
}
