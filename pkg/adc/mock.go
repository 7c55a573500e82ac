package adc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/doorbell/pkg/config"
)

// Mock simulates the sensor board for testing and development.
// Quiet periods produce a steady level with a little noise; every ring
// period the bell vibrates for the ring duration. Bursts are delivered with
// irregular sizes like the real continuous ADC.
type Mock struct {
	cfg    *config.MockConfig
	logger *slog.Logger

	queue     *burstQueue
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	// Simulation state
	rng     *rand.Rand
	sampled uint64   // Samples generated since Connect
	backlog []uint16 // Generated but not yet delivered
	led     [3]uint8
}

// NewMock creates a new simulated sensor.
func NewMock(cfg *config.MockConfig, logger *slog.Logger) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:    cfg,
		logger: logger.With("component", "adc", "port", "mock"),
		queue:  newBurstQueue(DefaultBufferSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		rng:    rand.New(rand.NewSource(1)),
	}
}

// Connect starts generating samples.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.ctx.Err() != nil {
		return fmt.Errorf("source closed")
	}

	m.connected = true

	go m.generateBursts()

	return nil
}

// Close stops the generator. Pending bursts can still be read, after which
// Read returns ErrClosed.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.mu.Unlock()

	<-m.done
	return nil
}

// IsConnected returns whether the generator is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Read implements Source.
func (m *Mock) Read(buf []uint16, timeout time.Duration) (int, error) {
	return m.queue.read(buf, timeout)
}

// Ticks implements Source.
func (m *Mock) Ticks() uint64 {
	return m.queue.ticks.Load()
}

// SetLED records the simulated LED colour.
func (m *Mock) SetLED(r, g, b uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("not connected")
	}

	if m.led != [3]uint8{r, g, b} {
		m.logger.Debug("led", "r", r, "g", g, "b", b)
	}
	m.led = [3]uint8{r, g, b}
	return nil
}

// LED returns the last colour set.
func (m *Mock) LED() (r, g, b uint8) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.led[0], m.led[1], m.led[2]
}

// generateBursts generates samples in real time and delivers them in bursts
// of random size. Whatever is not delivered stays in the backlog.
func (m *Mock) generateBursts() {
	defer close(m.done)
	defer close(m.queue.bursts)

	ticker := time.NewTicker(m.cfg.BurstInterval)
	defer ticker.Stop()

	perTick := int(m.cfg.BurstInterval / m.cfg.SampleRate)
	if perTick < 1 {
		perTick = 1
	}

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			for i := 0; i < perTick; i++ {
				m.backlog = append(m.backlog, m.generateSample())
			}

			n := m.rng.Intn(len(m.backlog) + 1)
			if n == 0 {
				continue
			}

			burst := Burst{
				Ticks:    m.ticksAt(m.sampled - uint64(len(m.backlog)-n)),
				Readings: append([]uint16(nil), m.backlog[:n]...),
			}
			m.backlog = m.backlog[n:]

			select {
			case m.queue.bursts <- burst:
			case <-m.ctx.Done():
				return
			default:
				m.logger.Warn("burst queue full, dropping burst", "samples", len(burst.Readings))
			}
		}
	}
}

// ticksAt converts a sample index into simulated timer microseconds.
func (m *Mock) ticksAt(sample uint64) uint64 {
	return sample * uint64(m.cfg.SampleRate/time.Microsecond)
}

// Ringing reports whether the simulated bell is vibrating at the given time
// since start. The first ring starts after one ring period.
func (m *Mock) Ringing(elapsed time.Duration) bool {
	if m.cfg.RingPeriod <= 0 || elapsed < m.cfg.RingPeriod {
		return false
	}
	return elapsed%m.cfg.RingPeriod < m.cfg.RingDuration
}

// generateSample generates the next raw reading.
func (m *Mock) generateSample() uint16 {
	elapsed := time.Duration(m.sampled) * m.cfg.SampleRate
	m.sampled++

	value := float32(m.cfg.Baseline) + float32(m.cfg.NoiseLevel)*(2*m.rng.Float32()-1)
	if m.Ringing(elapsed) {
		phase := 2 * math32.Pi * float32(m.cfg.RingFrequency) * float32(elapsed.Seconds())
		value += float32(m.cfg.RingAmplitude) * math32.Sin(phase)
	}

	value = math32.Max(0, math32.Min(1, value))
	return uint16(value * MaxReading)
}
