package wifi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APConnection is the NetworkManager connection profile used for the
// fallback access point.
const APConnection = "doorbell-ap"

const (
	commandTimeout = 15 * time.Second
	scanTimeout    = 30 * time.Second
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// NMCLI drives a NetworkManager managed interface through the nmcli tool.
type NMCLI struct {
	iface  string
	run    Runner
	logger *slog.Logger

	mu     sync.Mutex
	client APConfig
	ap     *APConfig
	apChan int
}

var _ Radio = (*NMCLI)(nil)

// NewNMCLI returns a radio for iface. A nil runner uses ExecRunner.
func NewNMCLI(iface string, run Runner, logger *slog.Logger) *NMCLI {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NMCLI{
		iface:  iface,
		run:    run,
		logger: logger.With("component", "nmcli", "iface", iface),
	}
}

func (n *NMCLI) nmcli(timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n.logger.Debug("exec", "args", args)
	return n.run(ctx, "nmcli", args...)
}

func (n *NMCLI) SetClientConfig(cfg APConfig) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.client = cfg
	n.ap = nil
	return nil
}

func (n *NMCLI) SetAPConfig(cfg APConfig, channel int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ap = &cfg
	n.apChan = channel
	return nil
}

// Start enables the radio, and in access point mode (re)creates and
// activates the access point profile.
func (n *NMCLI) Start() error {
	if _, err := n.nmcli(commandTimeout, "radio", "wifi", "on"); err != nil {
		return err
	}

	n.mu.Lock()
	ap, channel := n.ap, n.apChan
	n.mu.Unlock()
	if ap == nil {
		return nil
	}

	// A missing profile is fine.
	_, _ = n.nmcli(commandTimeout, "connection", "delete", APConnection)

	args := []string{
		"connection", "add", "type", "wifi",
		"ifname", n.iface,
		"con-name", APConnection,
		"autoconnect", "no",
		"ssid", ap.SSID,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"802-11-wireless.channel", strconv.Itoa(channel),
		"ipv4.method", "shared",
	}
	if ap.Password != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", ap.Password)
	}
	if _, err := n.nmcli(commandTimeout, args...); err != nil {
		return err
	}
	_, err := n.nmcli(commandTimeout, "connection", "up", APConnection)
	return err
}

func (n *NMCLI) Stop() error {
	_, err := n.nmcli(commandTimeout, "device", "disconnect", n.iface)
	return err
}

func (n *NMCLI) Scan() ([]AccessPoint, error) {
	out, err := n.nmcli(scanTimeout,
		"-t", "-f", "SSID,BSSID,SIGNAL,CHAN,SECURITY",
		"device", "wifi", "list", "ifname", n.iface, "--rescan", "yes")
	if err != nil {
		return nil, err
	}
	return parseScan(out), nil
}

// Connect starts activation and returns immediately; the Manager polls IsUp.
func (n *NMCLI) Connect() error {
	n.mu.Lock()
	cfg := n.client
	n.mu.Unlock()

	args := []string{"-w", "0", "device", "wifi", "connect", cfg.SSID}
	if cfg.Password != "" {
		args = append(args, "password", cfg.Password)
	}
	args = append(args, "ifname", n.iface)
	_, err := n.nmcli(commandTimeout, args...)
	return err
}

func (n *NMCLI) state() (int, error) {
	out, err := n.nmcli(commandTimeout, "-g", "GENERAL.STATE", "device", "show", n.iface)
	if err != nil {
		return 0, err
	}
	return parseDeviceState(string(out))
}

// IsUp reports the NetworkManager "activated" device state.
func (n *NMCLI) IsUp() (bool, error) {
	st, err := n.state()
	return st == deviceActivated, err
}

// IsConnected reports association: any state from IP configuration onwards.
func (n *NMCLI) IsConnected() (bool, error) {
	st, err := n.state()
	return st >= deviceIPConfig && st <= deviceActivated, err
}

func (n *NMCLI) StationIP() (IPInfo, error) {
	return n.ip()
}

func (n *NMCLI) APIP() (IPInfo, error) {
	return n.ip()
}

func (n *NMCLI) ip() (IPInfo, error) {
	out, err := n.nmcli(commandTimeout, "-g", "IP4.ADDRESS,IP4.GATEWAY", "device", "show", n.iface)
	if err != nil {
		return IPInfo{}, err
	}
	return parseIP(string(out)), nil
}

// NetworkManager device states.
const (
	deviceIPConfig  = 70
	deviceActivated = 100
)

// parseDeviceState reads "100 (connected)".
func parseDeviceState(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	st, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad device state %q: %w", s, err)
	}
	return st, nil
}

// parseIP reads the address and gateway lines of "nmcli -g". Only the first
// address is used.
func parseIP(s string) IPInfo {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var info IPInfo
	if len(lines) > 0 {
		addr, _, _ := strings.Cut(lines[0], " | ")
		addr, _, _ = strings.Cut(addr, "/")
		info.IP = strings.TrimSpace(addr)
	}
	if len(lines) > 1 {
		info.Gateway = strings.TrimSpace(lines[1])
	}
	return info
}

// parseScan reads terse "SSID:BSSID:SIGNAL:CHAN:SECURITY" lines. Hidden
// networks are skipped. Signal quality is mapped to an approximate dBm.
func parseScan(out []byte) []AccessPoint {
	var aps []AccessPoint
	for _, line := range strings.Split(string(out), "\n") {
		fields := splitTerse(strings.TrimRight(line, "\r"))
		if len(fields) != 5 || fields[0] == "" {
			continue
		}
		signal, _ := strconv.Atoi(fields[2])
		channel, _ := strconv.Atoi(fields[3])
		aps = append(aps, AccessPoint{
			SSID:     fields[0],
			BSSID:    fields[1],
			RSSI:     signal/2 - 100,
			Channel:  channel,
			Security: fields[4],
		})
	}
	return aps
}

// splitTerse splits on ':' honouring nmcli's backslash escapes.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}
