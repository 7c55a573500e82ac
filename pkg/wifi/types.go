// Package wifi keeps the device on a network: it scans, joins the strongest
// known access point, and falls back to hosting its own access point for
// local configuration.
package wifi

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MaxSSIDLen is the 802.11 SSID limit in bytes.
	MaxSSIDLen = 32
	// MaxPasswordLen is the WPA2 passphrase limit in bytes.
	MaxPasswordLen = 64
)

var (
	ErrEmptySSID       = errors.New("ssid is empty")
	ErrSSIDTooLong     = errors.New("ssid is longer than 32 bytes")
	ErrPasswordTooLong = errors.New("password is longer than 64 bytes")
)

// Mode is the connectivity state tag.
type Mode int

const (
	ModeNotConnected Mode = iota
	ModeStation
	ModeAccessPoint
)

// Modes lists every Mode for gauges that need to zero the others.
var Modes = []Mode{ModeNotConnected, ModeStation, ModeAccessPoint}

func (m Mode) String() string {
	switch m {
	case ModeNotConnected:
		return "not_connected"
	case ModeStation:
		return "station"
	case ModeAccessPoint:
		return "access_point"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// APConfig holds credentials of an access point to join or to host.
type APConfig struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// NewAPConfig returns a validated config.
func NewAPConfig(ssid, password string) (APConfig, error) {
	cfg := APConfig{SSID: ssid, Password: password}
	return cfg, cfg.Validate()
}

// Validate checks the 802.11 length limits.
func (c APConfig) Validate() error {
	switch {
	case c.SSID == "":
		return ErrEmptySSID
	case len(c.SSID) > MaxSSIDLen:
		return fmt.Errorf("%w: %q", ErrSSIDTooLong, c.SSID)
	case len(c.Password) > MaxPasswordLen:
		return ErrPasswordTooLong
	}
	return nil
}

// IPInfo is the address assigned to the active interface.
type IPInfo struct {
	IP      string `json:"ip"`
	Gateway string `json:"gateway,omitempty"`
}

// AccessPoint is one scan result.
type AccessPoint struct {
	SSID     string `json:"ssid"`
	BSSID    string `json:"bssid"`
	RSSI     int    `json:"rssi"`
	Channel  int    `json:"channel"`
	Security string `json:"security"`
}

// State is the outcome of a connectivity operation.
type State struct {
	Mode Mode
	AP   APConfig
	IP   IPInfo
}

func (s State) String() string {
	if s.Mode == ModeNotConnected {
		return s.Mode.String()
	}
	return fmt.Sprintf("%s ssid=%s ip=%s", s.Mode, s.AP.SSID, s.IP.IP)
}

// MarshalJSON never exposes the password.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode    string `json:"mode"`
		SSID    string `json:"ssid,omitempty"`
		IP      string `json:"ip,omitempty"`
		Gateway string `json:"gateway,omitempty"`
	}{s.Mode.String(), s.AP.SSID, s.IP.IP, s.IP.Gateway})
}
