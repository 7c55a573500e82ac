package sample

// Frame is a fixed-capacity sequence of normalised readings.
// Appends never overrun the capacity.
type Frame struct {
	values []float32
	n      int
}

// NewFrame creates an empty frame holding size readings.
func NewFrame(size int) *Frame {
	return &Frame{values: make([]float32, size)}
}

// Append normalises raw readings (raw / fullScale) into the frame and returns
// how many were consumed. Readings beyond the remaining capacity are ignored.
func (f *Frame) Append(raw []uint16, fullScale float32) int {
	if room := len(f.values) - f.n; len(raw) > room {
		raw = raw[:room]
	}
	for i, r := range raw {
		f.values[f.n+i] = float32(r) / fullScale
	}
	f.n += len(raw)
	return len(raw)
}

// Len returns the number of readings collected so far.
func (f *Frame) Len() int { return f.n }

// Cap returns the frame length.
func (f *Frame) Cap() int { return len(f.values) }

// Remaining returns how many readings are still needed to fill the frame.
func (f *Frame) Remaining() int { return len(f.values) - f.n }

// Full reports whether the frame holds exactly Cap readings.
func (f *Frame) Full() bool { return f.n == len(f.values) }

// Values returns the collected readings. The slice is reused after Reset.
func (f *Frame) Values() []float32 { return f.values[:f.n] }

// Reset moves the cursor back to the start.
func (f *Frame) Reset() { f.n = 0 }
