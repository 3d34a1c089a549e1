package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowEvictsOldestFirst(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Push(v)
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{3, 4, 5}, w.Values())
	assert.Equal(t, []float64{3, 4}, w.Head(2))
	assert.Equal(t, []float64{4, 5}, w.Recent(2))

	last, ok := w.Last()
	assert.True(t, ok)
	assert.Equal(t, 5.0, last)
	assert.InDelta(t, 4.0, w.Mean(), 1e-9)
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, DefaultCapacity, w.Cap())

	for i := 0; i < 250; i++ {
		w.Push(float64(i))
		assert.LessOrEqual(t, w.Len(), DefaultCapacity)
	}
	assert.Equal(t, 150.0, w.At(0))
	assert.Len(t, w.Recent(500), DefaultCapacity)
}

func TestWindowEmpty(t *testing.T) {
	w := NewWindow(10)
	_, ok := w.Last()
	assert.False(t, ok)
	assert.Equal(t, 0.0, w.Mean())
	assert.Nil(t, w.Head(5))
	assert.Equal(t, Statistics{}, w.Stats())
}
