package latest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCell_Empty(t *testing.T) {
	c := New[int]()
	v, ok := c.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestCell_LastWriteWins(t *testing.T) {
	c := New[string]()
	c.Set("a")
	c.Set("b")

	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestCell_ConcurrentReaders(t *testing.T) {
	c := New[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			c.Set(i)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for i := 0; i < 1000; i++ {
				v, _ := c.Get()
				assert.GreaterOrEqual(t, v, last)
				last = v
			}
		}()
	}

	wg.Wait()
	v, _ := c.Get()
	assert.Equal(t, 1000, v)
}
