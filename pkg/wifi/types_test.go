package wifi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/doorbell/pkg/store"
)

func TestNewAPConfig(t *testing.T) {
	_, err := NewAPConfig("home", "secret")
	assert.NoError(t, err)

	_, err = NewAPConfig("", "secret")
	assert.ErrorIs(t, err, ErrEmptySSID)

	_, err = NewAPConfig(strings.Repeat("s", 33), "")
	assert.ErrorIs(t, err, ErrSSIDTooLong)

	_, err = NewAPConfig(strings.Repeat("s", 32), strings.Repeat("p", 65))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestState_JSONHidesPassword(t *testing.T) {
	st := State{Mode: ModeStation, AP: APConfig{SSID: "home", Password: "secret"}, IP: IPInfo{IP: "10.0.0.2"}}
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"station","ssid":"home","ip":"10.0.0.2"}`, string(raw))
	assert.Equal(t, "station ssid=home ip=10.0.0.2", st.String())
	assert.Equal(t, "not_connected", State{}.String())
}

func TestHashSSID(t *testing.T) {
	assert.Equal(t, "523222484ec92fb", HashSSID(""))
	assert.Equal(t, "15b7da311f0887d", HashSSID("HomeNet"))
	assert.Len(t, HashSSID(strings.Repeat("x", 32)), 15)
}

func TestAPStore(t *testing.T) {
	aps := NewAPStore(store.NewMemory())

	list, err := aps.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, aps.Add(APConfig{SSID: "home", Password: "a"}))
	require.NoError(t, aps.Add(APConfig{SSID: "garage", Password: "b"}))
	require.NoError(t, aps.Add(APConfig{SSID: "home", Password: "c"}))
	assert.ErrorIs(t, aps.Add(APConfig{SSID: ""}), ErrEmptySSID)

	list, err = aps.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "c", list["home"].Password)

	cfg, ok, err := aps.Get("garage")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", cfg.Password)

	require.NoError(t, aps.Delete("garage"))
	_, ok, err = aps.Get("garage")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err = aps.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, aps.Delete("unknown"))
}
