package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame_AppendNormalises(t *testing.T) {
	f := NewFrame(4)
	n := f.Append([]uint16{0, 1024, 2048}, 4096)

	assert.Equal(t, 3, n)
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, 1, f.Remaining())
	assert.False(t, f.Full())
	assert.Equal(t, []float32{0, 0.25, 0.5}, f.Values())
}

func TestFrame_AppendNeverOverruns(t *testing.T) {
	f := NewFrame(4)
	f.Append([]uint16{1, 2, 3}, 1)

	n := f.Append([]uint16{4, 5, 6, 7}, 1)
	assert.Equal(t, 1, n)
	assert.True(t, f.Full())
	assert.Equal(t, []float32{1, 2, 3, 4}, f.Values())

	n = f.Append([]uint16{8}, 1)
	assert.Equal(t, 0, n)
	assert.Equal(t, 4, f.Len())
}

func TestFrame_Reset(t *testing.T) {
	f := NewFrame(2)
	f.Append([]uint16{1, 2}, 1)
	f.Reset()

	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 2, f.Cap())
	assert.Empty(t, f.Values())
}
