// Package supervisor runs the device main loop: it keeps the network up,
// routes ring events to the LED and delivery worker, feeds the watchdog and
// restarts the device when a worker dies.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/itohio/doorbell/pkg/alert"
	"github.com/itohio/doorbell/pkg/detector"
	"github.com/itohio/doorbell/pkg/led"
	"github.com/itohio/doorbell/pkg/mqtt"
	"github.com/itohio/doorbell/pkg/wifi"
)

// ErrRestart is returned by Step and Run once a restart was requested.
var ErrRestart = errors.New("restart requested")

// Network is the part of wifi.Manager the orchestrator drives.
type Network interface {
	TryConnect(known map[string]wifi.APConfig, fallback *wifi.APConfig, timeout time.Duration) (wifi.State, error)
	ConnectSTA(cfg wifi.APConfig, timeout time.Duration) (wifi.State, error)
	IsConnected() (bool, error)
}

// Uplink is a started MQTT session.
type Uplink interface {
	Events() <-chan mqtt.Event
	Handle(ctx context.Context, ev mqtt.Event)
	Close()
}

// UplinkFactory starts the MQTT session. It returns a nil Uplink when MQTT
// is disabled.
type UplinkFactory func(ctx context.Context) (Uplink, error)

// Indicator is the status LED.
type Indicator interface {
	Ring(on bool)
	Flash(c led.Color)
}

// Deliverer queues messages for the delivery worker.
type Deliverer interface {
	Deliver(ctx context.Context, msg alert.Message) error
}

// Feeder is the watchdog.
type Feeder interface {
	Feed() error
}

// Options wires the orchestrator.
type Options struct {
	Network        Network
	KnownAPs       func() (map[string]wifi.APConfig, error)
	Fallback       *wifi.APConfig
	ConnectTimeout time.Duration
	// ReconnectEvery is the number of ticks between reconnect attempts.
	ReconnectEvery int

	// Tick paces the loop while not connected.
	Tick time.Duration
	// EventTimeout bounds the wait for events while connected.
	EventTimeout time.Duration
	// StatusEvery is the number of connected ticks between status messages.
	StatusEvery int

	Events      <-chan detector.RingMessage
	LED         Indicator
	Alerts      Deliverer
	StartUplink UplinkFactory
	Watchdog    Feeder
	Restarter   Restarter
	Workers     []*Task
	Logger      *slog.Logger
}

// Orchestrator is the supervising state machine. Run and Step must be called
// from a single goroutine.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	state     wifi.State
	connected bool

	// mqttStarted is set once per process, not per WiFi connection. The
	// client redials on its own and the uplink resubscribes on Reconnected.
	mqttStarted bool
	uplink      Uplink
	mqttEvents  <-chan mqtt.Event

	tick      uint64
	connTicks uint64
	phase     string
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.ReconnectEvery <= 0 {
		opts.ReconnectEvery = 30
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = time.Second
	}
	if opts.StatusEvery <= 0 {
		opts.StatusEvery = 30
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.KnownAPs == nil {
		opts.KnownAPs = func() (map[string]wifi.APConfig, error) { return nil, nil }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:   opts,
		logger: opts.Logger.With("component", "supervisor"),
	}
}

// State returns the current connectivity state.
func (o *Orchestrator) State() wifi.State {
	return o.state
}

// Run loops until ctx is cancelled or a restart is requested.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		if o.uplink != nil {
			o.uplink.Close()
		}
	}()

	for {
		if err := o.Step(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Step performs one loop iteration.
func (o *Orchestrator) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() { o.tick++ }()

	for _, t := range o.opts.Workers {
		if t.Finished() {
			reason := fmt.Sprintf("task %s finished: %v", t.Name(), t.Err())
			if o.opts.Restarter != nil {
				o.opts.Restarter.Restart(reason)
			}
			return fmt.Errorf("%w: %s", ErrRestart, reason)
		}
	}

	switch o.state.Mode {
	case wifi.ModeNotConnected:
		o.setPhase("not_connected")
		o.flushRings()
		o.connect(ctx)
	case wifi.ModeStation:
		if o.connected {
			o.setPhase("station_connected")
			o.stationConnected(ctx)
		} else {
			o.setPhase("station_disconnected")
			o.stationDisconnected(ctx)
		}
	case wifi.ModeAccessPoint:
		o.setPhase("access_point")
		o.accessPoint(ctx)
	}
	return nil
}

func (o *Orchestrator) setPhase(phase string) {
	if phase == o.phase {
		return
	}
	o.logger.Info("state", "from", o.phase, "to", phase, "wifi", o.state.String(), "mqtt", o.mqttStarted)
	o.phase = phase
}

func (o *Orchestrator) connect(ctx context.Context) {
	known, err := o.opts.KnownAPs()
	if err != nil {
		o.logger.Error("failed to load known access points", "err", err)
	}

	st, err := o.opts.Network.TryConnect(known, o.opts.Fallback, o.opts.ConnectTimeout)
	if err != nil {
		o.logger.Error("connect failed", "err", err)
	}
	o.state = st
	o.connected = st.Mode == wifi.ModeStation

	switch st.Mode {
	case wifi.ModeStation:
		o.flash(led.Blue)
	case wifi.ModeAccessPoint:
		o.flash(led.Green)
	default:
		o.flash(led.Red)
		o.sleep(ctx, o.opts.Tick)
	}
}

func (o *Orchestrator) stationDisconnected(ctx context.Context) {
	o.flushRings()

	if o.tick%uint64(o.opts.ReconnectEvery) == 0 {
		o.logger.Info("reconnecting", "ssid", o.state.AP.SSID)
		st, err := o.opts.Network.ConnectSTA(o.state.AP, o.opts.ConnectTimeout)
		switch {
		case err != nil:
			o.logger.Warn("reconnect failed", "err", err)
		case st.Mode == wifi.ModeStation:
			o.state = st
			o.connected = true
			return
		}
	}

	o.flash(led.Red)
	o.sleep(ctx, o.opts.Tick)
}

func (o *Orchestrator) stationConnected(ctx context.Context) {
	if ok, err := o.opts.Network.IsConnected(); err != nil || !ok {
		o.logger.Warn("wifi disconnected", "err", err)
		o.connected = false
		return
	}

	if !o.mqttStarted && o.opts.StartUplink != nil {
		u, err := o.opts.StartUplink(ctx)
		if err != nil {
			o.logger.Error("failed to start mqtt", "err", err)
		} else {
			o.mqttStarted = true
			o.uplink = u
			if u != nil {
				o.mqttEvents = u.Events()
			}
		}
	}

	timer := time.NewTimer(o.opts.EventTimeout)
	defer timer.Stop()

	select {
	case msg := <-o.opts.Events:
		o.logger.Info("ring event", "event", msg.String())
		if o.opts.LED != nil {
			o.opts.LED.Ring(msg.Kind == detector.RingStart)
		}
		o.deliver(ctx, alert.FromRing(msg))
	case ev, ok := <-o.mqttEvents:
		if !ok {
			o.mqttEvents = nil
			break
		}
		o.uplink.Handle(ctx, ev)
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	if o.connTicks%uint64(o.opts.StatusEvery) == 0 {
		o.deliver(ctx, alert.Message{Kind: alert.Status})
	}
	o.connTicks++

	o.feed()
}

func (o *Orchestrator) accessPoint(ctx context.Context) {
	o.flushRings()
	o.flash(led.Green)
	o.feed()
	o.sleep(ctx, o.opts.Tick)
}

func (o *Orchestrator) deliver(ctx context.Context, msg alert.Message) {
	if o.opts.Alerts == nil {
		return
	}
	if err := o.opts.Alerts.Deliver(ctx, msg); err != nil {
		o.logger.Warn("delivery not queued", "kind", msg.Kind.String(), "err", err)
	}
}

// flushRings drops queued ring events so they are not replayed later.
func (o *Orchestrator) flushRings() {
	for {
		select {
		case msg := <-o.opts.Events:
			o.logger.Debug("discarding ring event", "event", msg.String())
		default:
			return
		}
	}
}

func (o *Orchestrator) flash(c led.Color) {
	if o.opts.LED != nil {
		o.opts.LED.Flash(c)
	}
}

func (o *Orchestrator) feed() {
	if o.opts.Watchdog == nil {
		return
	}
	if err := o.opts.Watchdog.Feed(); err != nil {
		o.logger.Warn("failed to feed watchdog", "err", err)
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
