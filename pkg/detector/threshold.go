package detector

// ThresholdTracker keeps a fixed-length history of recent quiet standard
// deviations. The history always holds exactly k values; the oldest value is
// dropped on every update.
type ThresholdTracker struct {
	history []float32
	next    int
}

// NewThresholdTracker creates a tracker with k slots, all seeded with seed.
// A high seed makes the detector start out quiet.
func NewThresholdTracker(k int, seed float32) *ThresholdTracker {
	if k <= 0 {
		k = HistoryLen
	}

	history := make([]float32, k)
	for i := range history {
		history[i] = seed
	}

	return &ThresholdTracker{history: history}
}

// Threshold returns the average of the history.
func (t *ThresholdTracker) Threshold() float32 {
	var sum float32
	for _, v := range t.history {
		sum += v
	}
	return sum / float32(len(t.history))
}

// Update replaces the oldest value with stddev.
func (t *ThresholdTracker) Update(stddev float32) {
	t.history[t.next] = stddev
	t.next = (t.next + 1) % len(t.history)
}

// History returns the values oldest first.
func (t *ThresholdTracker) History() []float32 {
	result := make([]float32, 0, len(t.history))
	result = append(result, t.history[t.next:]...)
	result = append(result, t.history[:t.next]...)
	return result
}
