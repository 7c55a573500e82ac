package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Task is a monitored worker goroutine.
type Task struct {
	name string
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Go starts fn in a goroutine. A panic in fn is recovered and reported as
// the task's error. A worker is expected to run until ctx is cancelled; any
// earlier return is a failure the orchestrator acts on.
func Go(ctx context.Context, name string, fn func(ctx context.Context) error, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Task{name: name, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
				t.setErr(fmt.Errorf("task %s panicked: %v", name, r))
			}
		}()

		logger.Info("task started", "task", name)
		err := fn(ctx)
		t.setErr(err)
		if ctx.Err() == nil {
			logger.Error("task exited", "task", name, "err", err)
		}
	}()

	return t
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

func (t *Task) Name() string {
	return t.name
}

// Finished reports whether the goroutine has returned.
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed when the goroutine returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error the task finished with.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
