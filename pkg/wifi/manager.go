package wifi

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/itohio/doorbell/pkg/latest"
	"github.com/itohio/doorbell/pkg/metrics"
)

// DefaultPollInterval is how often ConnectSTA checks the link.
const DefaultPollInterval = 500 * time.Millisecond

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	PollInterval time.Duration
	// Scans receives every scan result, strongest first.
	Scans *latest.Cell[[]AccessPoint]
	// State receives every state the manager produces.
	State  *latest.Cell[State]
	Logger *slog.Logger
}

// Manager implements the connectivity state transitions over a Radio.
// It is driven by a single goroutine.
type Manager struct {
	radio  Radio
	poll   time.Duration
	scans  *latest.Cell[[]AccessPoint]
	state  *latest.Cell[State]
	logger *slog.Logger
	sleep  func(time.Duration)
}

func NewManager(radio Radio, opts ManagerOptions) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Scans == nil {
		opts.Scans = latest.New[[]AccessPoint]()
	}
	if opts.State == nil {
		opts.State = latest.New[State]()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		radio:  radio,
		poll:   opts.PollInterval,
		scans:  opts.Scans,
		state:  opts.State,
		logger: opts.Logger.With("component", "wifi"),
		sleep:  time.Sleep,
	}
}

// Scans returns the cell holding the last scan result.
func (m *Manager) Scans() *latest.Cell[[]AccessPoint] {
	return m.scans
}

// State returns the last state produced by the manager.
func (m *Manager) State() State {
	s, _ := m.state.Get()
	return s
}

// Scan lists visible access points, strongest first.
func (m *Manager) Scan() ([]AccessPoint, error) {
	if err := m.radio.SetClientConfig(APConfig{}); err != nil {
		return nil, fmt.Errorf("failed to configure radio for scan: %w", err)
	}
	if err := m.radio.Start(); err != nil {
		return nil, fmt.Errorf("failed to start radio: %w", err)
	}
	aps, err := m.radio.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}

	slices.SortStableFunc(aps, func(a, b AccessPoint) int {
		return cmp.Compare(b.RSSI, a.RSSI)
	})
	for _, ap := range aps {
		m.logger.Info("visible", "ssid", ap.SSID, "channel", ap.Channel, "rssi", ap.RSSI, "security", ap.Security)
	}

	m.scans.Set(slices.Clone(aps))
	metrics.SetScanResults(len(aps))
	return aps, nil
}

// TryConnect joins the strongest visible access point that is also in known.
// When none can be joined it hosts fallback, if given, and otherwise reports
// ModeNotConnected. Failing to join is not an error.
func (m *Manager) TryConnect(known map[string]APConfig, fallback *APConfig, timeout time.Duration) (State, error) {
	visible, err := m.Scan()
	if err != nil {
		m.logger.Warn("scan failed", "err", err)
	}

	tried := make(map[string]bool)
	for _, ap := range visible {
		cfg, ok := known[ap.SSID]
		if !ok || tried[ap.SSID] {
			continue
		}
		tried[ap.SSID] = true

		st, err := m.ConnectSTA(cfg, timeout)
		if err != nil {
			m.logger.Warn("connect failed", "ssid", cfg.SSID, "err", err)
			continue
		}
		if st.Mode == ModeStation {
			return st, nil
		}
	}

	if fallback != nil {
		return m.StartAP(*fallback)
	}

	m.logger.Warn("no known access point available")
	return m.setState(State{Mode: ModeNotConnected}), nil
}

// ConnectSTA joins cfg, polling until the link is up or timeout elapses.
// A timeout stops the radio and reports ModeNotConnected with a nil error.
func (m *Manager) ConnectSTA(cfg APConfig, timeout time.Duration) (State, error) {
	if err := m.radio.SetClientConfig(cfg); err != nil {
		return State{}, fmt.Errorf("failed to configure %q: %w", cfg.SSID, err)
	}
	if err := m.radio.Start(); err != nil {
		return State{}, fmt.Errorf("failed to start radio: %w", err)
	}
	if err := m.radio.Connect(); err != nil {
		metrics.IncWifiConnect(false)
		if err := m.radio.Stop(); err != nil {
			m.logger.Warn("failed to stop radio", "err", err)
		}
		return State{}, fmt.Errorf("failed to connect to %q: %w", cfg.SSID, err)
	}

	var waited time.Duration
	for {
		up, err := m.radio.IsUp()
		if err != nil {
			metrics.IncWifiConnect(false)
			return State{}, fmt.Errorf("failed to query link: %w", err)
		}
		if up {
			break
		}

		associated, _ := m.radio.IsConnected()
		m.logger.Info("connecting", "ssid", cfg.SSID, "waited", waited, "associated", associated)

		if waited >= timeout {
			metrics.IncWifiConnect(false)
			if err := m.radio.Stop(); err != nil {
				m.logger.Warn("failed to stop radio", "err", err)
			}
			m.logger.Warn("connect timed out", "ssid", cfg.SSID, "timeout", timeout)
			return m.setState(State{Mode: ModeNotConnected}), nil
		}
		m.sleep(m.poll)
		waited += m.poll
	}

	ip, err := m.radio.StationIP()
	if err != nil {
		m.logger.Warn("failed to read address", "err", err)
	}
	metrics.IncWifiConnect(true)
	m.logger.Info("connected", "ssid", cfg.SSID, "ip", ip.IP, "gateway", ip.Gateway)
	return m.setState(State{Mode: ModeStation, AP: cfg, IP: ip}), nil
}

// StartAP hosts cfg on APChannel, WPA2-Personal when it has a password and
// open otherwise.
func (m *Manager) StartAP(cfg APConfig) (State, error) {
	if err := cfg.Validate(); err != nil {
		return State{}, fmt.Errorf("invalid access point config: %w", err)
	}
	if err := m.radio.SetAPConfig(cfg, APChannel); err != nil {
		return State{}, fmt.Errorf("failed to configure access point: %w", err)
	}
	if err := m.radio.Start(); err != nil {
		return State{}, fmt.Errorf("failed to start access point: %w", err)
	}

	ip, err := m.radio.APIP()
	if err != nil {
		m.logger.Warn("failed to read access point address", "err", err)
	}
	m.logger.Info("access point started", "ssid", cfg.SSID, "secured", cfg.Password != "", "ip", ip.IP)
	return m.setState(State{Mode: ModeAccessPoint, AP: cfg, IP: ip}), nil
}

// IsConnected reports whether the station link is still associated.
func (m *Manager) IsConnected() (bool, error) {
	return m.radio.IsConnected()
}

func (m *Manager) setState(s State) State {
	m.state.Set(s)

	all := make([]string, len(Modes))
	for i, mode := range Modes {
		all[i] = mode.String()
	}
	metrics.SetWifiMode(s.Mode.String(), all)
	return s
}
