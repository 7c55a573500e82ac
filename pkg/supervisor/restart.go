package supervisor

import (
	"log/slog"
	"sync"

	"github.com/itohio/doorbell/pkg/metrics"
)

// Restarter performs a full device restart.
type Restarter interface {
	Restart(reason string)
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(reason string)

func (f RestarterFunc) Restart(reason string) { f(reason) }

// OnceRestarter forwards only the first restart request.
type OnceRestarter struct {
	next   Restarter
	logger *slog.Logger
	once   sync.Once
}

func NewOnceRestarter(next Restarter, logger *slog.Logger) *OnceRestarter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnceRestarter{next: next, logger: logger.With("component", "supervisor")}
}

func (r *OnceRestarter) Restart(reason string) {
	r.once.Do(func() {
		r.logger.Error("restarting", "reason", reason)
		metrics.IncRestart(reason)
		r.next.Restart(reason)
	})
}
