// Package sample assembles irregular ADC bursts into fixed-length frames and
// runs them through the ring detector.
package sample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/itohio/doorbell/pkg/adc"
	"github.com/itohio/doorbell/pkg/detector"
	"github.com/itohio/doorbell/pkg/latest"
	"github.com/itohio/doorbell/pkg/metrics"
)

const (
	// DefaultFrameLen is 50ms of samples at 1kHz.
	DefaultFrameLen = 50
	// DefaultFullScale normalises 12-bit readings.
	DefaultFullScale = 4096
	// DefaultReadTimeout bounds a single hardware read.
	DefaultReadTimeout = 200 * time.Millisecond
	// DefaultBurstSize is the largest burst requested per read.
	DefaultBurstSize = 64
)

// Options configures a Sampler.
type Options struct {
	FrameLen    int
	FullScale   float32
	ReadTimeout time.Duration
	BurstSize   int
	Debug       bool

	// Stats receives the snapshot of every processed frame. Optional.
	Stats *latest.Cell[detector.Stats]
	// Events receives ring transitions in frame order. A transition is
	// dropped rather than stall sampling when it is full. Optional.
	Events chan<- detector.RingMessage
	Logger *slog.Logger
}

// Sampler drives an ADC source, fills frames and feeds them to the detector.
type Sampler struct {
	src    adc.Source
	det    *detector.Detector
	opts   Options
	logger *slog.Logger

	frame     *Frame
	buf       []uint16
	lastTicks uint64
	debug     atomic.Bool
}

// NewSampler creates a sampler reading from src and detecting with det.
func NewSampler(src adc.Source, det *detector.Detector, opts Options) *Sampler {
	if opts.FrameLen <= 0 {
		opts.FrameLen = DefaultFrameLen
	}
	if opts.FullScale <= 0 {
		opts.FullScale = DefaultFullScale
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.BurstSize <= 0 {
		opts.BurstSize = DefaultBurstSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Sampler{
		src:    src,
		det:    det,
		opts:   opts,
		logger: opts.Logger.With("component", "sampler"),
		frame:  NewFrame(opts.FrameLen),
		buf:    make([]uint16, opts.BurstSize),
	}
	s.debug.Store(opts.Debug)

	return s
}

// SetDebug toggles per-frame stats logging.
func (s *Sampler) SetDebug(on bool) {
	s.debug.Store(on)
}

// Run samples until ctx is cancelled or the source is closed.
// Read timeouts and transient errors are logged and retried.
func (s *Sampler) Run(ctx context.Context) error {
	s.lastTicks = s.src.Ticks()
	s.logger.Info("sampling started", "frame_len", s.opts.FrameLen, "read_timeout", s.opts.ReadTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.step(); err != nil {
			return err
		}
	}
}

// step performs one bounded read and processes the frame if it filled up.
func (s *Sampler) step() error {
	want := min(len(s.buf), s.frame.Remaining())

	n, err := s.src.Read(s.buf[:want], s.opts.ReadTimeout)
	switch {
	case errors.Is(err, adc.ErrClosed):
		return fmt.Errorf("adc source stopped: %w", err)
	case errors.Is(err, adc.ErrTimeout):
		metrics.IncADCReadError("timeout")
		s.logger.Debug("adc read timeout")
		return nil
	case err != nil:
		metrics.IncADCReadError("io")
		s.logger.Warn("adc read failed", "err", err)
		return nil
	}

	s.frame.Append(s.buf[:n], s.opts.FullScale)
	if !s.frame.Full() {
		return nil
	}

	return s.processFrame()
}

func (s *Sampler) processFrame() error {
	ticks := s.src.Ticks()
	elapsed := ticks - s.lastTicks
	s.lastTicks = ticks

	stats, msg := s.det.Process(s.frame.Values(), elapsed)
	s.frame.Reset()

	if s.opts.Stats != nil {
		s.opts.Stats.Set(stats)
	}
	metrics.ObserveFrame(stats.Mean, stats.StdDev, stats.Threshold, time.Duration(elapsed)*time.Microsecond)

	if s.debug.Load() {
		s.logger.Info("frame", "stats", stats.String())
	}

	if msg == nil {
		return nil
	}

	s.logger.Info("ring transition", "kind", msg.Kind, "stats", stats.String())
	metrics.IncRingTransition(msg.Kind.String())

	if s.opts.Events == nil {
		return nil
	}

	select {
	case s.opts.Events <- *msg:
	default:
		metrics.IncRingDropped(msg.Kind.String())
		s.logger.Warn("ring event queue full, dropping transition", "kind", msg.Kind)
	}

	return nil
}
