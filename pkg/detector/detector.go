// Package detector turns fixed-length frames of normalised Hall sensor
// readings into a debounced ring state.
//
// Each frame is reduced to its mean and standard deviation. A frame rings
// when its deviation exceeds Trigger times the adaptive quiet threshold. The
// threshold is the average of the last HistoryLen quiet deviations and only
// learns from frames that have signal (mean above MinSignal) and do not ring.
// The ringing state flips only after DebounceLen identical frame verdicts.
package detector

// Tuned constants shared by every deployment profile.
const (
	// Trigger is the multiple of the quiet threshold a frame deviation must exceed to ring.
	Trigger = 2.5
	// MinSignal is the mean below which the sensor is considered unpowered.
	MinSignal = 0.1
	// HistoryLen is the number of quiet deviations averaged into the threshold.
	HistoryLen = 5
	// DebounceLen is the number of consecutive identical verdicts needed to change state.
	DebounceLen = 3
	// InitialThreshold seeds the history so a fresh detector starts quiet.
	InitialThreshold = 1.0
)

// Kind identifies a ring state transition.
type Kind int

const (
	RingStart Kind = iota
	RingStop
)

func (k Kind) String() string {
	switch k {
	case RingStart:
		return "RingStart"
	case RingStop:
		return "RingStop"
	default:
		return "Unknown"
	}
}

// RingMessage is emitted when the debounced ring state changes.
// Stats is the snapshot of the frame that completed the transition.
type RingMessage struct {
	Kind  Kind
	Stats Stats
}

func (m RingMessage) String() string {
	if m.Kind == RingStart {
		return "RingStart(" + m.Stats.String() + ")"
	}
	return m.Kind.String()
}

// Detector is the debounced ring state machine.
// It is owned by the sampling goroutine and is not safe for concurrent use.
type Detector struct {
	threshold *ThresholdTracker
	window    []bool
	ringing   bool
	count     uint64
}

// New creates a detector with the tuned constants: quiet, window all false.
func New() *Detector {
	return NewWithParams(HistoryLen, DebounceLen)
}

// NewWithParams creates a detector with a custom history and debounce length.
func NewWithParams(historyLen, debounceLen int) *Detector {
	if debounceLen <= 0 {
		debounceLen = DebounceLen
	}
	return &Detector{
		threshold: NewThresholdTracker(historyLen, InitialThreshold),
		window:    make([]bool, debounceLen),
	}
}

// Process evaluates one complete frame. elapsed is the number of hardware
// timer ticks since the previous frame and is only recorded in the stats.
// The returned message is nil unless the debounced state changed.
func (d *Detector) Process(frame []float32, elapsed uint64) (Stats, *RingMessage) {
	mean, stddev := FrameStatistics(frame)
	threshold := d.threshold.Threshold()
	ring := stddev > threshold*Trigger

	// Ringing frames and unpowered sensors never feed the quiet baseline
	if mean > MinSignal && !ring {
		d.threshold.Update(stddev)
	}

	d.count++
	stats := Stats{
		Count:     d.count,
		Elapsed:   elapsed,
		Mean:      mean,
		StdDev:    stddev,
		Threshold: threshold,
		Ring:      ring,
	}

	copy(d.window, d.window[1:])
	d.window[len(d.window)-1] = ring

	switch {
	case !d.ringing && d.windowIs(true):
		d.ringing = true
		return stats, &RingMessage{Kind: RingStart, Stats: stats}
	case d.ringing && d.windowIs(false):
		d.ringing = false
		return stats, &RingMessage{Kind: RingStop, Stats: stats}
	}

	return stats, nil
}

// Ringing reports the current debounced state.
func (d *Detector) Ringing() bool {
	return d.ringing
}

// Threshold returns the current quiet threshold.
func (d *Detector) Threshold() float32 {
	return d.threshold.Threshold()
}

// History returns a copy of the threshold history, oldest first.
func (d *Detector) History() []float32 {
	return d.threshold.History()
}

func (d *Detector) windowIs(v bool) bool {
	for _, w := range d.window {
		if w != v {
			return false
		}
	}
	return true
}
