package wifi

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls   []string
	outputs map[string]string
	fail    map[string]bool
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	for prefix := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return nil, errors.New("exit status 10")
		}
	}
	for prefix, out := range f.outputs {
		if strings.HasPrefix(call, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func TestParseScan(t *testing.T) {
	out := "home:AA\\:BB\\:CC\\:DD\\:EE\\:01:80:6:WPA2\n" +
		":AA\\:BB\\:CC\\:DD\\:EE\\:02:90:11:WPA2\n" +
		"cafe\\:guest:AA\\:BB\\:CC\\:DD\\:EE\\:03:40:1:\n\n"

	aps := parseScan([]byte(out))
	require.Len(t, aps, 2)
	assert.Equal(t, AccessPoint{SSID: "home", BSSID: "AA:BB:CC:DD:EE:01", RSSI: -60, Channel: 6, Security: "WPA2"}, aps[0])
	assert.Equal(t, "cafe:guest", aps[1].SSID)
	assert.Equal(t, -80, aps[1].RSSI)
	assert.Empty(t, aps[1].Security)
}

func TestParseDeviceState(t *testing.T) {
	st, err := parseDeviceState("100 (connected)\n")
	require.NoError(t, err)
	assert.Equal(t, 100, st)

	_, err = parseDeviceState("unknown")
	assert.Error(t, err)
}

func TestParseIP(t *testing.T) {
	assert.Equal(t, IPInfo{IP: "192.168.1.7", Gateway: "192.168.1.1"},
		parseIP("192.168.1.7/24 | 10.0.0.3/8\n192.168.1.1\n"))
	assert.Equal(t, IPInfo{}, parseIP(""))
}

func TestNMCLI_Connect(t *testing.T) {
	f := &fakeRunner{}
	n := NewNMCLI("wlan0", f.run, nil)

	require.NoError(t, n.SetClientConfig(APConfig{SSID: "home", Password: "pw"}))
	require.NoError(t, n.Start())
	require.NoError(t, n.Connect())
	assert.Equal(t, []string{
		"nmcli radio wifi on",
		"nmcli -w 0 device wifi connect home password pw ifname wlan0",
	}, f.calls)
}

func TestNMCLI_StartAP(t *testing.T) {
	tests := []struct {
		name    string
		cfg     APConfig
		wantPSK bool
	}{
		{"secured", APConfig{SSID: "ESP32C3-AP", Password: "password"}, true},
		{"open", APConfig{SSID: "ESP32C3-AP"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{fail: map[string]bool{"nmcli connection delete": true}}
			n := NewNMCLI("wlan0", f.run, nil)

			require.NoError(t, n.SetAPConfig(tt.cfg, APChannel))
			require.NoError(t, n.Start())
			require.Len(t, f.calls, 4)

			add := f.calls[2]
			assert.Contains(t, add, "nmcli connection add type wifi ifname wlan0 con-name doorbell-ap")
			assert.Contains(t, add, "802-11-wireless.mode ap")
			assert.Contains(t, add, "802-11-wireless.channel 1")
			assert.Contains(t, add, "ipv4.method shared")
			assert.Equal(t, tt.wantPSK, strings.Contains(add, "wifi-sec.psk password"))
			assert.Equal(t, "nmcli connection up doorbell-ap", f.calls[3])
		})
	}
}

func TestNMCLI_LinkState(t *testing.T) {
	f := &fakeRunner{outputs: map[string]string{
		"nmcli -g GENERAL.STATE": "70 (connecting (getting IP configuration))",
	}}
	n := NewNMCLI("wlan0", f.run, nil)

	up, err := n.IsUp()
	require.NoError(t, err)
	assert.False(t, up)

	connected, err := n.IsConnected()
	require.NoError(t, err)
	assert.True(t, connected)

	f.outputs["nmcli -g GENERAL.STATE"] = "30 (disconnected)"
	connected, err = n.IsConnected()
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestNMCLI_Errors(t *testing.T) {
	f := &fakeRunner{fail: map[string]bool{"nmcli": true}}
	n := NewNMCLI("wlan0", f.run, nil)

	_, err := n.Scan()
	assert.Error(t, err)
	_, err = n.IsUp()
	assert.Error(t, err)
	assert.Error(t, n.Stop())
}
