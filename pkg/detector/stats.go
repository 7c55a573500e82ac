package detector

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Stats is the reporting snapshot produced for every processed frame.
type Stats struct {
	Count     uint64  `json:"count"`     // Frames processed since start (1-based)
	Elapsed   uint64  `json:"elapsed"`   // Hardware timer ticks since the previous frame
	Mean      float32 `json:"mean"`      // Frame mean (normalised, 0..1)
	StdDev    float32 `json:"std_dev"`   // Frame population standard deviation
	Threshold float32 `json:"threshold"` // Quiet threshold the frame was judged against
	Ring      bool    `json:"ring"`      // Ring predicate for this frame (before debounce)
}

// String renders the summary line published on the stats topic.
// Format: [count/elapsed] Mean: m :: Std Dev: s/threshold :: Ring: bool
func (s Stats) String() string {
	return fmt.Sprintf("[%d/%06d] Mean: %.4f :: Std Dev: %.4f/%.4f :: Ring: %t",
		s.Count, s.Elapsed, s.Mean, s.StdDev, s.Threshold, s.Ring)
}

// FrameStatistics returns the mean and population standard deviation of frame.
// Variance divides by N, not N-1. An empty frame yields zeros.
func FrameStatistics(frame []float32) (mean, stddev float32) {
	if len(frame) == 0 {
		return 0, 0
	}

	n := float32(len(frame))

	var sum float32
	for _, x := range frame {
		sum += x
	}
	mean = sum / n

	var sq float32
	for _, x := range frame {
		d := mean - x
		sq += d * d
	}

	return mean, math32.Sqrt(sq / n)
}
