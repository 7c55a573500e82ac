package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/doorbell/pkg/detector"
	"github.com/itohio/doorbell/pkg/latest"
	"github.com/itohio/doorbell/pkg/metrics"
	"github.com/itohio/doorbell/pkg/retry"
	"github.com/itohio/doorbell/pkg/wifi"
)

const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"

	notifyAttempts = 3
)

// Kind identifies a delivery request.
type Kind int

const (
	RingStart Kind = iota
	RingStop
	Status
)

func (k Kind) String() string {
	switch k {
	case RingStart:
		return "ring_start"
	case RingStop:
		return "ring_stop"
	case Status:
		return "status"
	default:
		return "unknown"
	}
}

// Message is a delivery request.
type Message struct {
	Kind  Kind
	Stats detector.Stats
}

// FromRing converts a detector transition.
func FromRing(m detector.RingMessage) Message {
	if m.Kind == detector.RingStart {
		return Message{Kind: RingStart, Stats: m.Stats}
	}
	return Message{Kind: RingStop, Stats: m.Stats}
}

// Publisher sends MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
}

// Notifier sends the ring push notification.
type Notifier interface {
	Enabled() bool
	Ring(ctx context.Context) error
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Mqtt     MqttConfig
	Notifier Notifier
	// Stats and Wifi feed the status messages. Optional.
	Stats  *latest.Cell[detector.Stats]
	Wifi   *latest.Cell[wifi.State]
	Queue  int
	Logger *slog.Logger
	// Backoff is the push notification retry policy.
	Backoff retry.ExponentialBackoff
}

// Worker delivers messages one at a time in the order they were queued.
type Worker struct {
	cfg      MqttConfig
	notifier Notifier
	stats    *latest.Cell[detector.Stats]
	wifi     *latest.Cell[wifi.State]
	backoff  retry.ExponentialBackoff
	logger   *slog.Logger
	in       chan Message

	mu  sync.RWMutex
	pub Publisher
}

func NewWorker(opts WorkerOptions) *Worker {
	if opts.Queue <= 0 {
		opts.Queue = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w := &Worker{
		cfg:      opts.Mqtt.WithDefaults(),
		notifier: opts.Notifier,
		stats:    opts.Stats,
		wifi:     opts.Wifi,
		backoff:  opts.Backoff,
		logger:   opts.Logger.With("component", "alert"),
		in:       make(chan Message, opts.Queue),
	}
	if w.backoff.MaxAttempts == 0 {
		w.backoff.MaxAttempts = notifyAttempts
		w.backoff.MinInterval = time.Second
	}
	if w.backoff.Logger == nil {
		w.backoff.Logger = w.logger
	}
	return w
}

// SetPublisher attaches (or with nil detaches) the MQTT uplink.
func (w *Worker) SetPublisher(p Publisher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pub = p
}

func (w *Worker) publisher() Publisher {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pub
}

// Deliver queues msg, waiting for room until ctx ends.
func (w *Worker) Deliver(ctx context.Context, msg Message) error {
	select {
	case w.in <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-w.in:
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg Message) {
	switch msg.Kind {
	case RingStart:
		w.logger.Info("ring", "stats", msg.Stats.String())
		w.publish("ring", w.cfg.RingTopic, PayloadOn, true)
		w.notify(ctx)
	case RingStop:
		w.logger.Info("ring stopped")
		w.publish("ring", w.cfg.RingTopic, PayloadOff, true)
	case Status:
		w.status()
	}
}

func (w *Worker) status() {
	if w.wifi != nil {
		if st, ok := w.wifi.Get(); ok {
			w.publish("status", w.cfg.StatusTopic+"/ip", st.IP.IP, true)
			w.publish("status", w.cfg.StatusTopic+"/wifi", st.String(), true)
		}
	}
	if w.stats != nil {
		if s, ok := w.stats.Get(); ok {
			w.publish("stats", w.cfg.StatusTopic+"/stats", s.String(), false)
		}
	}
}

func (w *Worker) publish(kind, topic, payload string, retain bool) {
	pub := w.publisher()
	if pub == nil || !w.cfg.Enabled {
		return
	}
	err := pub.Publish(topic, []byte(payload), retain)
	metrics.IncMQTTPublish(kind, err)
	if err != nil {
		w.logger.Warn("publish failed", "topic", topic, "err", err)
		return
	}
	w.logger.Debug("published", "topic", topic, "payload", payload)
}

func (w *Worker) notify(ctx context.Context) {
	if w.notifier == nil || !w.notifier.Enabled() {
		return
	}
	err := w.backoff.Start(ctx, "pushover", func(ctx context.Context) (bool, error) {
		return true, w.notifier.Ring(ctx)
	})
	metrics.IncNotification(err)
	if err != nil {
		w.logger.Error("notification failed", "err", fmt.Errorf("failed to notify: %w", err))
	}
}
