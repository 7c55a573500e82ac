package adc

import (
	"sync/atomic"
	"time"
)

// Burst is one group of readings delivered by the hardware at once.
type Burst struct {
	Ticks    uint64   // Hardware timer (microseconds) at the end of the burst
	Readings []uint16 // Raw 12-bit readings, oldest first
}

// burstQueue hands bursts produced by a reader goroutine to a single consumer.
// Readings that did not fit into the consumer's buffer are kept for the next Read.
type burstQueue struct {
	bursts  chan Burst
	pending []uint16
	ticks   atomic.Uint64
}

func newBurstQueue(size int) *burstQueue {
	return &burstQueue{bursts: make(chan Burst, size)}
}

func (q *burstQueue) read(buf []uint16, timeout time.Duration) (int, error) {
	if len(q.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case b, ok := <-q.bursts:
			if !ok {
				return 0, ErrClosed
			}
			q.pending = b.Readings
			q.ticks.Store(b.Ticks)
		case <-timer.C:
			return 0, ErrTimeout
		}
	}

	n := copy(buf, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}
