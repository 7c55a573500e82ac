package wifi

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func network(ssid, password string, rssi int) SimNetwork {
	return SimNetwork{
		AccessPoint: AccessPoint{SSID: ssid, BSSID: "aa:bb:cc:00:00:01", RSSI: rssi, Channel: 6, Security: "WPA2"},
		Password:    password,
	}
}

func newTestManager(r Radio) (*Manager, *int) {
	m := NewManager(r, ManagerOptions{PollInterval: 500 * time.Millisecond})
	sleeps := new(int)
	m.sleep = func(time.Duration) { *sleeps++ }
	return m, sleeps
}

func TestScan_StrongestFirst(t *testing.T) {
	r := NewSimRadio(0,
		network("weak", "", -80),
		network("strong", "", -35),
		network("mid", "", -60),
	)
	m, _ := newTestManager(r)

	aps, err := m.Scan()
	require.NoError(t, err)
	require.Len(t, aps, 3)
	assert.Equal(t, "strong", aps[0].SSID)
	assert.Equal(t, "mid", aps[1].SSID)
	assert.Equal(t, "weak", aps[2].SSID)

	cached, ok := m.Scans().Get()
	require.True(t, ok)
	assert.Equal(t, aps, cached)
	assert.Equal(t, []string{"client:", "start", "scan"}, r.Ops())
}

func TestTryConnect_StrongestKnownWins(t *testing.T) {
	r := NewSimRadio(1,
		network("neighbour", "x", -30),
		network("garage", "g-pass", -70),
		network("home", "h-pass", -45),
	)
	m, _ := newTestManager(r)

	known := map[string]APConfig{
		"garage": {SSID: "garage", Password: "g-pass"},
		"home":   {SSID: "home", Password: "h-pass"},
	}
	st, err := m.TryConnect(known, &APConfig{SSID: "fallback"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeStation, st.Mode)
	assert.Equal(t, "home", st.AP.SSID)
	assert.Equal(t, "192.168.1.50", st.IP.IP)
	assert.NotContains(t, r.Ops(), "connect:garage")
	assert.Equal(t, st, m.State())
}

func TestTryConnect_SkipsFailingKnownAP(t *testing.T) {
	r := NewSimRadio(0,
		network("home", "right", -40),
		network("garage", "g-pass", -70),
	)
	m, sleeps := newTestManager(r)

	known := map[string]APConfig{
		"home":   {SSID: "home", Password: "wrong"},
		"garage": {SSID: "garage", Password: "g-pass"},
	}
	st, err := m.TryConnect(known, nil, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeStation, st.Mode)
	assert.Equal(t, "garage", st.AP.SSID)
	assert.Equal(t, 4, *sleeps)
	assert.Contains(t, r.Ops(), "stop")
}

func TestTryConnect_FallbackWithoutKnownAPs(t *testing.T) {
	r := NewSimRadio(0, network("neighbour", "x", -30))
	m, sleeps := newTestManager(r)

	st, err := m.TryConnect(nil, &APConfig{SSID: "ESP32C3-AP", Password: "password"}, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeAccessPoint, st.Mode)
	assert.Equal(t, "ESP32C3-AP", st.AP.SSID)
	assert.Equal(t, "192.168.71.1", st.IP.IP)
	assert.Zero(t, *sleeps)
	assert.Equal(t, []string{"client:", "start", "scan", "ap:ESP32C3-AP:1", "start"}, r.Ops())
}

func TestTryConnect_NoFallback(t *testing.T) {
	m, _ := newTestManager(NewSimRadio(0))

	st, err := m.TryConnect(map[string]APConfig{"home": {SSID: "home"}}, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeNotConnected, st.Mode)
}

func TestConnectSTA_Timeout(t *testing.T) {
	r := NewSimRadio(100, network("home", "pw", -40))
	m, sleeps := newTestManager(r)

	st, err := m.ConnectSTA(APConfig{SSID: "home", Password: "pw"}, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeNotConnected, st.Mode)
	assert.Equal(t, 6, *sleeps)

	ops := r.Ops()
	assert.Equal(t, "stop", ops[len(ops)-1])
}

func TestConnectSTA_PollsUntilUp(t *testing.T) {
	r := NewSimRadio(3, network("home", "pw", -40))
	m, sleeps := newTestManager(r)

	st, err := m.ConnectSTA(APConfig{SSID: "home", Password: "pw"}, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeStation, st.Mode)
	assert.Equal(t, 3, *sleeps)

	ok, err := m.IsConnected()
	require.NoError(t, err)
	assert.True(t, ok)

	r.Drop()
	ok, err = m.IsConnected()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartAP_Open(t *testing.T) {
	m, _ := newTestManager(NewSimRadio(0))

	st, err := m.StartAP(APConfig{SSID: "doorbell"})
	require.NoError(t, err)
	assert.Equal(t, ModeAccessPoint, st.Mode)
}

func TestStartAP_Invalid(t *testing.T) {
	m, _ := newTestManager(NewSimRadio(0))

	_, err := m.StartAP(APConfig{SSID: "this-ssid-is-definitely-longer-than-32"})
	assert.ErrorIs(t, err, ErrSSIDTooLong)
}

type mockRadio struct {
	mock.Mock
}

func (r *mockRadio) SetClientConfig(cfg APConfig) error { return r.Called(cfg).Error(0) }
func (r *mockRadio) SetAPConfig(cfg APConfig, channel int) error {
	return r.Called(cfg, channel).Error(0)
}
func (r *mockRadio) Start() error { return r.Called().Error(0) }
func (r *mockRadio) Stop() error  { return r.Called().Error(0) }
func (r *mockRadio) Scan() ([]AccessPoint, error) {
	args := r.Called()
	aps, _ := args.Get(0).([]AccessPoint)
	return aps, args.Error(1)
}
func (r *mockRadio) Connect() error { return r.Called().Error(0) }
func (r *mockRadio) IsUp() (bool, error) {
	args := r.Called()
	return args.Bool(0), args.Error(1)
}
func (r *mockRadio) IsConnected() (bool, error) {
	args := r.Called()
	return args.Bool(0), args.Error(1)
}
func (r *mockRadio) StationIP() (IPInfo, error) {
	args := r.Called()
	return args.Get(0).(IPInfo), args.Error(1)
}
func (r *mockRadio) APIP() (IPInfo, error) {
	args := r.Called()
	return args.Get(0).(IPInfo), args.Error(1)
}

func TestConnectSTA_ConnectError(t *testing.T) {
	r := new(mockRadio)
	cfg := APConfig{SSID: "home"}
	r.On("SetClientConfig", cfg).Return(nil)
	r.On("Start").Return(nil)
	r.On("Connect").Return(errors.New("no such network"))
	r.On("Stop").Return(nil).Once()

	m, _ := newTestManager(r)
	_, err := m.ConnectSTA(cfg, time.Second)
	assert.Error(t, err)
	r.AssertExpectations(t)
	r.AssertCalled(t, "Stop")
}

func TestTryConnect_ScanErrorFallsBack(t *testing.T) {
	r := new(mockRadio)
	fallback := APConfig{SSID: "doorbell"}
	r.On("SetClientConfig", APConfig{}).Return(nil)
	r.On("Start").Return(nil)
	r.On("Scan").Return(nil, errors.New("busy"))
	r.On("SetAPConfig", fallback, APChannel).Return(nil)
	r.On("APIP").Return(IPInfo{IP: "10.42.0.1"}, nil)

	m, _ := newTestManager(r)
	st, err := m.TryConnect(map[string]APConfig{"home": {SSID: "home"}}, &fallback, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ModeAccessPoint, st.Mode)
	assert.Equal(t, "10.42.0.1", st.IP.IP)
	r.AssertNotCalled(t, "Connect")
}
