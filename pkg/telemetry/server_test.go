package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/doorbell/pkg/detector"
	"github.com/itohio/doorbell/pkg/latest"
	"github.com/itohio/doorbell/pkg/wifi"
)

func newTestServer(t *testing.T) (*httptest.Server, Sources, *bool) {
	t.Helper()
	debug := new(bool)
	src := Sources{
		Stats: latest.New[detector.Stats](),
		Scans: latest.New[[]wifi.AccessPoint](),
		Wifi:  latest.New[wifi.State](),
		Debug: func(on bool) { *debug = on },
	}

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "doorbell_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	ts := httptest.NewServer(New(":0", src, reg, nil).Handler())
	t.Cleanup(ts.Close)
	return ts, src, debug
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Stats(t *testing.T) {
	ts, src, _ := newTestServer(t)

	code, _ := get(t, ts.URL+"/api/stats")
	assert.Equal(t, http.StatusNotFound, code)

	src.Stats.Set(detector.Stats{Count: 3, Elapsed: 50000, Mean: 0.5, StdDev: 0.01, Threshold: 0.004, Ring: true})
	code, body := get(t, ts.URL+"/api/stats")
	require.Equal(t, http.StatusOK, code)

	var got detector.Stats
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, uint64(3), got.Count)
	assert.True(t, got.Ring)
}

func TestServer_WifiAndScan(t *testing.T) {
	ts, src, _ := newTestServer(t)

	src.Wifi.Set(wifi.State{Mode: wifi.ModeAccessPoint, AP: wifi.APConfig{SSID: "ESP32C3-AP", Password: "password"}})
	src.Scans.Set([]wifi.AccessPoint{{SSID: "home", RSSI: -40}})

	code, body := get(t, ts.URL+"/api/wifi")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"mode":"access_point"`)
	assert.NotContains(t, body, "password")

	code, body = get(t, ts.URL+"/api/scan")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"ssid":"home"`)
}

func TestServer_Debug(t *testing.T) {
	ts, _, debug := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/debug/on", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, *debug)

	resp, err = http.Post(ts.URL+"/api/debug/off", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, *debug)

	resp, err = http.Post(ts.URL+"/api/debug/maybe", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MetricsAndHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	code, body := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, "doorbell_test_total 1"))

	code, body = get(t, ts.URL+"/api/health")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)
}
