// Package led drives the status pixel.
package led

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Color is an RGB value.
type Color struct {
	R, G, B uint8
}

var (
	Off   = Color{}
	Red   = Color{R: 255}
	Green = Color{G: 255}
	Blue  = Color{B: 255}
	White = Color{R: 255, G: 255, B: 255}
)

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Pixel is a single addressable LED.
type Pixel interface {
	Set(c Color) error
}

// PixelFunc adapts a function such as adc.Source.SetLED to Pixel.
type PixelFunc func(r, g, b uint8) error

func (f PixelFunc) Set(c Color) error {
	return f(c.R, c.G, c.B)
}

const (
	DefaultBlink  = 200 * time.Millisecond
	DefaultLinger = 5
)

// Options configures a Task.
type Options struct {
	// Blink is the on (and off) time of one ring blink phase.
	Blink time.Duration
	// Linger is the number of blink cycles kept after ringing stops.
	Linger int
	Logger *slog.Logger
}

// Task owns the pixel: it blinks red while ringing and shows short flashes
// otherwise. Requests never block the caller.
type Task struct {
	pixel  Pixel
	blink  time.Duration
	linger int
	logger *slog.Logger

	ring  chan bool
	flash chan Color
}

func NewTask(p Pixel, opts Options) *Task {
	if opts.Blink <= 0 {
		opts.Blink = DefaultBlink
	}
	if opts.Linger < 0 {
		opts.Linger = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Task{
		pixel:  p,
		blink:  opts.Blink,
		linger: opts.Linger,
		logger: opts.Logger.With("component", "led"),
		ring:   make(chan bool, 8),
		flash:  make(chan Color, 1),
	}
}

// Ring starts or stops the ring indication.
func (t *Task) Ring(on bool) {
	select {
	case t.ring <- on:
	default:
		t.logger.Warn("ring request dropped", "on", on)
	}
}

// Flash shows c for one blink period unless a ring is being shown.
func (t *Task) Flash(c Color) {
	select {
	case t.flash <- c:
	default:
	}
}

// Run drives the pixel until ctx is cancelled.
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.blink)
	defer ticker.Stop()

	var (
		ringing   bool
		remaining int
		lit       bool
		flashing  bool
	)

	for {
		select {
		case <-ctx.Done():
			t.set(Off)
			return ctx.Err()

		case on := <-t.ring:
			if on && !ringing {
				t.logger.Debug("ring on")
			}
			ringing = on
			remaining = t.linger

		case c := <-t.flash:
			if ringing || remaining > 0 {
				continue
			}
			t.set(c)
			flashing = true

		case <-ticker.C:
			switch {
			case ringing || remaining > 0:
				lit = !lit
				if lit {
					t.set(Red)
					continue
				}
				t.set(Off)
				if !ringing {
					remaining--
				}
			case flashing:
				t.set(Off)
				flashing = false
			}
		}
	}
}

func (t *Task) set(c Color) {
	if err := t.pixel.Set(c); err != nil {
		t.logger.Warn("failed to set pixel", "color", c.String(), "err", err)
	}
}
