package adc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the baud rate the sensor firmware uses.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default number of bursts buffered between reader and consumer.
	DefaultBufferSize = 100
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads sample bursts streamed by the sensor MCU over a serial port.
// Each line carries one burst: "ticks_us,r0,r1,...,rN".
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	logger   *slog.Logger

	conn      serial.Port
	queue     *burstQueue
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial source with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int, logger *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		logger:   logger.With("component", "adc", "port", port),
		queue:    newBurstQueue(bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}

	return result, nil
}

// Connect opens the serial port and starts reading bursts.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}
	if d.ctx.Err() != nil {
		return fmt.Errorf("source closed")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readBursts(port)

	return nil
}

// Close closes the port and stops reading.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.logger.Warn("error closing serial port", "err", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Read implements Source.
func (d *Serial) Read(buf []uint16, timeout time.Duration) (int, error) {
	return d.queue.read(buf, timeout)
}

// Ticks implements Source.
func (d *Serial) Ticks() uint64 {
	return d.queue.ticks.Load()
}

// SetLED sends an LED colour command to the MCU.
func (d *Serial) SetLED(r, g, b uint8) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}

	if _, err := d.conn.Write([]byte(ledCommand(r, g, b))); err != nil {
		return fmt.Errorf("failed to send LED command: %w", err)
	}

	return nil
}

// ledCommand formats the LED command understood by the firmware: "Lrrggbb\n".
func ledCommand(r, g, b uint8) string {
	return fmt.Sprintf("L%02x%02x%02x\n", r, g, b)
}

// readBursts reads lines from r, parses them into bursts and queues them.
// The bursts channel is closed when the reader stops.
func (d *Serial) readBursts(r io.Reader) {
	defer close(d.queue.bursts)
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in serial reader", "panic", rec)
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && d.ctx.Err() == nil {
				d.logger.Error("error reading from serial port", "err", err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		burst, err := parseLine(line)
		if err != nil {
			d.logger.Warn("failed to parse line", "line", line, "err", err)
			continue
		}

		select {
		case d.queue.bursts <- burst:
		case <-d.ctx.Done():
			return
		default:
			d.logger.Warn("burst queue full, dropping burst", "samples", len(burst.Readings))
		}
	}
}

// parseLine parses a line from the MCU into a Burst.
// Format: ticks_us,r0,r1,...,rN
// Example: 1234567,2048,2051,2047
func parseLine(line string) (Burst, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return Burst{}, fmt.Errorf("invalid line format: expected ticks and at least one reading, got %d fields", len(parts))
	}

	ticks, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Burst{}, fmt.Errorf("invalid ticks: %w", err)
	}

	readings := make([]uint16, 0, len(parts)-1)
	for _, p := range parts[1:] {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Burst{}, fmt.Errorf("invalid reading: %w", err)
		}
		if v > MaxReading {
			return Burst{}, fmt.Errorf("reading out of range: %d (max %d)", v, MaxReading)
		}
		readings = append(readings, uint16(v))
	}

	return Burst{Ticks: ticks, Readings: readings}, nil
}
