// Package watchdog resets the device when the supervisor stops feeding it.
package watchdog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/doorbell/pkg/metrics"
)

// Watchdog must be fed more often than its timeout.
type Watchdog interface {
	Feed() error
	Close() error
}

var (
	_ Watchdog = (*Soft)(nil)
	_ Watchdog = (*Device)(nil)
)

// Soft is a process-local watchdog that calls expire when it is not fed
// within timeout. It is used when no hardware watchdog is available.
type Soft struct {
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewSoft arms a soft watchdog.
func NewSoft(timeout time.Duration, expire func(), logger *slog.Logger) *Soft {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Soft{
		timeout: timeout,
		logger:  logger.With("component", "watchdog"),
	}
	s.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.logger.Error("watchdog expired", "timeout", s.timeout)
		expire()
	})
	s.logger.Info("soft watchdog armed", "timeout", timeout)
	return s
}

func (s *Soft) Feed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.timer.Reset(s.timeout)
		metrics.IncWatchdogFeed()
	}
	return nil
}

func (s *Soft) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.timer.Stop()
	return nil
}
