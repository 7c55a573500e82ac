package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/doorbell/pkg/alert"
	"github.com/itohio/doorbell/pkg/detector"
	"github.com/itohio/doorbell/pkg/led"
	"github.com/itohio/doorbell/pkg/mqtt"
	"github.com/itohio/doorbell/pkg/wifi"
)

type fakeNetwork struct {
	tryState    wifi.State
	staState    wifi.State
	connected   bool
	tryCalls    int
	staCalls    int
	gotKnown    map[string]wifi.APConfig
	gotFallback *wifi.APConfig
}

func (n *fakeNetwork) TryConnect(known map[string]wifi.APConfig, fallback *wifi.APConfig, _ time.Duration) (wifi.State, error) {
	n.tryCalls++
	n.gotKnown = known
	n.gotFallback = fallback
	return n.tryState, nil
}

func (n *fakeNetwork) ConnectSTA(cfg wifi.APConfig, _ time.Duration) (wifi.State, error) {
	n.staCalls++
	return n.staState, nil
}

func (n *fakeNetwork) IsConnected() (bool, error) {
	return n.connected, nil
}

type fakeLED struct {
	rings   []bool
	flashes []led.Color
}

func (l *fakeLED) Ring(on bool)      { l.rings = append(l.rings, on) }
func (l *fakeLED) Flash(c led.Color) { l.flashes = append(l.flashes, c) }

type fakeAlerts struct {
	msgs []alert.Message
}

func (a *fakeAlerts) Deliver(_ context.Context, msg alert.Message) error {
	a.msgs = append(a.msgs, msg)
	return nil
}

func (a *fakeAlerts) kinds() []alert.Kind {
	var out []alert.Kind
	for _, m := range a.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type fakeFeeder struct {
	feeds int
}

func (f *fakeFeeder) Feed() error {
	f.feeds++
	return nil
}

type fakeUplink struct {
	events  chan mqtt.Event
	handled []mqtt.Event
	closed  bool
}

func (u *fakeUplink) Events() <-chan mqtt.Event { return u.events }
func (u *fakeUplink) Handle(_ context.Context, ev mqtt.Event) {
	u.handled = append(u.handled, ev)
}
func (u *fakeUplink) Close() { u.closed = true }

type harness struct {
	net     *fakeNetwork
	led     *fakeLED
	alerts  *fakeAlerts
	wd      *fakeFeeder
	uplink  *fakeUplink
	starts  int
	events  chan detector.RingMessage
	orch    *Orchestrator
	restart []string
}

func newHarness(net *fakeNetwork, workers ...*Task) *harness {
	h := &harness{
		net:    net,
		led:    &fakeLED{},
		alerts: &fakeAlerts{},
		wd:     &fakeFeeder{},
		uplink: &fakeUplink{events: make(chan mqtt.Event, 4)},
		events: make(chan detector.RingMessage, 8),
	}
	h.orch = NewOrchestrator(Options{
		Network:        net,
		KnownAPs:       func() (map[string]wifi.APConfig, error) { return map[string]wifi.APConfig{"home": {SSID: "home"}}, nil },
		Fallback:       &wifi.APConfig{SSID: "ESP32C3-AP", Password: "password"},
		ReconnectEvery: 3,
		Tick:           time.Millisecond,
		EventTimeout:   5 * time.Millisecond,
		StatusEvery:    2,
		Events:         h.events,
		LED:            h.led,
		Alerts:         h.alerts,
		StartUplink: func(context.Context) (Uplink, error) {
			h.starts++
			return h.uplink, nil
		},
		Watchdog:  h.wd,
		Restarter: RestarterFunc(func(reason string) { h.restart = append(h.restart, reason) }),
		Workers:   workers,
	})
	return h
}

func (h *harness) steps(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.orch.Step(context.Background()))
	}
}

var station = wifi.State{Mode: wifi.ModeStation, AP: wifi.APConfig{SSID: "home"}, IP: wifi.IPInfo{IP: "10.0.0.5"}}

func TestStep_FallbackAccessPoint(t *testing.T) {
	h := newHarness(&fakeNetwork{tryState: wifi.State{Mode: wifi.ModeAccessPoint, AP: wifi.APConfig{SSID: "ESP32C3-AP"}}})

	h.steps(t, 1)
	assert.Equal(t, wifi.ModeAccessPoint, h.orch.State().Mode)
	assert.Equal(t, "ESP32C3-AP", h.net.gotFallback.SSID)
	assert.Contains(t, h.net.gotKnown, "home")

	h.events <- detector.RingMessage{Kind: detector.RingStart}
	h.steps(t, 3)

	assert.Equal(t, 1, h.net.tryCalls)
	assert.Equal(t, 3, h.wd.feeds)
	assert.Empty(t, h.alerts.msgs)
	assert.Empty(t, h.events)
	assert.Zero(t, h.starts)
	assert.Contains(t, h.led.flashes, led.Green)
}

func TestStep_ConnectedForwardsRings(t *testing.T) {
	h := newHarness(&fakeNetwork{tryState: station, connected: true})

	h.steps(t, 1)
	require.Equal(t, wifi.ModeStation, h.orch.State().Mode)

	h.events <- detector.RingMessage{Kind: detector.RingStart}
	h.steps(t, 1)
	h.events <- detector.RingMessage{Kind: detector.RingStop}
	h.steps(t, 2)

	assert.Equal(t, 1, h.starts)
	assert.Equal(t, []bool{true, false}, h.led.rings)
	assert.Equal(t, []alert.Kind{alert.RingStart, alert.Status, alert.RingStop, alert.Status}, h.alerts.kinds())
	assert.Equal(t, 3, h.wd.feeds)
}

func TestStep_RingsQueuedBeforeConnectAreDiscarded(t *testing.T) {
	h := newHarness(&fakeNetwork{tryState: station, connected: true})

	h.events <- detector.RingMessage{Kind: detector.RingStart}
	h.events <- detector.RingMessage{Kind: detector.RingStop}
	h.steps(t, 1)
	require.Equal(t, wifi.ModeStation, h.orch.State().Mode)
	assert.Empty(t, h.events)

	h.steps(t, 1)
	assert.Empty(t, h.led.rings)
	assert.Equal(t, []alert.Kind{alert.Status}, h.alerts.kinds())
}

func TestStep_MqttEventsReachUplink(t *testing.T) {
	h := newHarness(&fakeNetwork{tryState: station, connected: true})
	h.steps(t, 2)

	h.uplink.events <- mqtt.Event{Kind: mqtt.EventReconnected}
	h.steps(t, 1)
	require.Len(t, h.uplink.handled, 1)
	assert.Equal(t, mqtt.EventReconnected, h.uplink.handled[0].Kind)

	close(h.uplink.events)
	h.steps(t, 2)
	assert.Nil(t, h.orch.mqttEvents)
}

func TestStep_DisconnectedReconnectsEveryNthTick(t *testing.T) {
	net := &fakeNetwork{tryState: station, connected: true}
	h := newHarness(net)
	h.steps(t, 2)
	feeds := h.wd.feeds

	net.connected = false
	net.staState = wifi.State{Mode: wifi.ModeNotConnected}
	h.events <- detector.RingMessage{Kind: detector.RingStart}

	h.steps(t, 7)
	assert.Equal(t, feeds, h.wd.feeds)
	assert.Empty(t, h.events)
	assert.Equal(t, 2, net.staCalls)
	assert.Equal(t, wifi.ModeStation, h.orch.State().Mode)

	net.connected = true
	net.staState = station
	h.steps(t, 3)
	assert.Equal(t, 3, net.staCalls)
	assert.Greater(t, h.wd.feeds, feeds)
	assert.Equal(t, 1, h.starts)
	assert.Empty(t, h.led.rings)
}

func TestStep_WorkerDeathRestarts(t *testing.T) {
	task := Go(context.Background(), "sampler", func(context.Context) error {
		return errors.New("adc closed")
	}, nil)
	<-task.Done()

	h := newHarness(&fakeNetwork{tryState: station, connected: true}, task)
	err := h.orch.Step(context.Background())
	assert.ErrorIs(t, err, ErrRestart)
	require.Len(t, h.restart, 1)
	assert.Contains(t, h.restart[0], "sampler")
	assert.Zero(t, h.net.tryCalls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(&fakeNetwork{tryState: station, connected: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, h.uplink.closed)
}

func TestOnceRestarter(t *testing.T) {
	var (
		mu      sync.Mutex
		reasons []string
	)
	r := NewOnceRestarter(RestarterFunc(func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, reason)
	}), nil)

	r.Restart("first")
	r.Restart("second")
	assert.Equal(t, []string{"first"}, reasons)
}
