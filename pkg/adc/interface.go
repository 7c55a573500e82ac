// Package adc provides sources of raw Hall sensor readings.
//
// A Source behaves like a continuous-ADC peripheral: each Read waits a
// bounded time and returns whatever burst of samples the hardware delivered,
// which may be anything from zero to the requested count.
package adc

import (
	"errors"
	"time"
)

// MaxReading is the largest valid 12-bit ADC reading.
const MaxReading = 4095

var (
	// ErrTimeout is returned when no samples arrived within the read timeout.
	ErrTimeout = errors.New("adc read timeout")
	// ErrClosed is returned when reading from a closed source.
	ErrClosed = errors.New("adc source closed")
)

// Source defines the interface for ADC sample sources (real or mocked).
type Source interface {
	Connect() error
	Close() error
	IsConnected() bool
	// Read copies up to len(buf) raw readings into buf, waiting at most timeout.
	Read(buf []uint16, timeout time.Duration) (int, error)
	// Ticks returns the hardware timer (microseconds) of the last delivered burst.
	Ticks() uint64
	// SetLED drives the status LED attached to the sensor board.
	SetLED(r, g, b uint8) error
}

// Ensure Serial implements Source.
var _ Source = (*Serial)(nil)

// Ensure Mock implements Source.
var _ Source = (*Mock)(nil)
