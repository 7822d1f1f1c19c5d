package audio_capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Push(t *testing.T) {
	t.Run("chunks are numbered in arrival order", func(t *testing.T) {
		q := NewQueue(4, nil)
		q.Push([]int16{1})
		q.Push([]int16{2})

		first := <-q.C()
		second := <-q.C()

		assert.Equal(t, uint64(1), first.Seq)
		assert.Equal(t, uint64(2), second.Seq)
		assert.Equal(t, []int16{2}, second.Samples)
	})

	t.Run("samples are copied so the caller can reuse its buffer", func(t *testing.T) {
		q := NewQueue(4, nil)
		in := []int16{5, 6}
		q.Push(in)
		in[0] = 99

		chunk := <-q.C()
		assert.Equal(t, []int16{5, 6}, chunk.Samples)
	})

	t.Run("a full queue drops the oldest chunk instead of blocking", func(t *testing.T) {
		q := NewQueue(2, nil)
		q.Push([]int16{1})
		q.Push([]int16{2})
		q.Push([]int16{3})

		assert.Equal(t, uint64(1), q.Dropped())
		assert.Equal(t, uint64(2), (<-q.C()).Seq)
		assert.Equal(t, uint64(3), (<-q.C()).Seq)
	})

	t.Run("push after close is ignored", func(t *testing.T) {
		q := NewQueue(2, nil)
		q.Close()
		q.Push([]int16{1})

		_, ok := <-q.C()
		require.False(t, ok)
		q.Close()
	})
}
