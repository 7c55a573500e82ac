package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/itohio/doorbell/pkg/mqtt"
)

// Ringer shows the ring state locally.
type Ringer interface {
	Ring(on bool)
}

// Uplink is a connected MQTT session subscribed to the ring topic. Ring
// messages from other doorbells on the topic are mirrored on the local LED.
type Uplink struct {
	cfg    MqttConfig
	client *mqtt.Client
	events <-chan mqtt.Event
	ringer Ringer
	logger *slog.Logger
}

// StartUplink connects to the broker in cfg and subscribes to the ring topic.
func StartUplink(ctx context.Context, cfg MqttConfig, ringer Ringer, logger *slog.Logger, opts ...mqtt.Option) (*Uplink, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, events, err := mqtt.New(cfg.URL, cfg.ClientID, append([]mqtt.Option{mqtt.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to start mqtt: %w", err)
	}

	u := &Uplink{
		cfg:    cfg,
		client: client,
		events: events,
		ringer: ringer,
		logger: logger.With("component", "uplink"),
	}
	if err := client.Subscribe(ctx, cfg.RingTopic); err != nil {
		client.Close()
		return nil, err
	}
	return u, nil
}

// Client is the publisher for the delivery worker.
func (u *Uplink) Client() *mqtt.Client {
	return u.client
}

// Events returns the MQTT event stream.
func (u *Uplink) Events() <-chan mqtt.Event {
	return u.events
}

// Handle reacts to one MQTT event.
func (u *Uplink) Handle(ctx context.Context, ev mqtt.Event) {
	switch ev.Kind {
	case mqtt.EventReconnected:
		u.logger.Info("reconnected, resubscribing", "topic", u.cfg.RingTopic)
		if err := u.client.Subscribe(ctx, u.cfg.RingTopic); err != nil {
			u.logger.Error("resubscribe failed", "err", err)
		}
	case mqtt.EventMessage:
		if ev.Topic != u.cfg.RingTopic || u.ringer == nil {
			return
		}
		switch strings.TrimSpace(string(ev.Payload)) {
		case PayloadOn:
			u.ringer.Ring(true)
		case PayloadOff:
			u.ringer.Ring(false)
		default:
			u.logger.Warn("unexpected ring payload", "payload", string(ev.Payload))
		}
	}
}

func (u *Uplink) Close() {
	u.client.Close()
}
