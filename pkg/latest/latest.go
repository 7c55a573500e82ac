// Package latest provides a last-write-wins value cell shared between one
// producer goroutine and any number of readers.
package latest

import "sync"

// Cell holds the most recent value written by its producer.
// No history is retained; readers get a copy of the value.
type Cell[T any] struct {
	mu    sync.RWMutex
	value T
	set   bool
}

// New returns an empty cell.
func New[T any]() *Cell[T] {
	return &Cell[T]{}
}

// Set replaces the current value.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.set = true
}

// Get returns the current value and whether anything has been written yet.
func (c *Cell[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.set
}
