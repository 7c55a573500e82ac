package wifi

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// SimNetwork is an access point visible to a SimRadio.
type SimNetwork struct {
	AccessPoint
	Password string
}

// SimRadio is an in-memory Radio for mock mode and tests. A join succeeds
// when the password matches, after UpAfter polls of IsUp.
type SimRadio struct {
	mu       sync.Mutex
	networks []SimNetwork
	upAfter  int

	client  APConfig
	ap      *APConfig
	started bool
	joining *SimNetwork
	polls   int
	up      bool
	hosting bool
	ops     []string
}

var _ Radio = (*SimRadio)(nil)

func NewSimRadio(upAfter int, networks ...SimNetwork) *SimRadio {
	return &SimRadio{networks: networks, upAfter: upAfter}
}

func (r *SimRadio) record(op string) {
	r.ops = append(r.ops, op)
}

// Ops returns the operations performed so far.
func (r *SimRadio) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ops)
}

// SetNetworks replaces the visible networks.
func (r *SimRadio) SetNetworks(networks ...SimNetwork) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks = networks
}

// Drop simulates losing the station link.
func (r *SimRadio) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.up = false
	r.joining = nil
}

func (r *SimRadio) SetClientConfig(cfg APConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("client:" + cfg.SSID)
	r.client = cfg
	r.ap = nil
	return nil
}

func (r *SimRadio) SetAPConfig(cfg APConfig, channel int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(fmt.Sprintf("ap:%s:%d", cfg.SSID, channel))
	r.ap = &cfg
	return nil
}

func (r *SimRadio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("start")
	r.started = true
	r.hosting = r.ap != nil
	return nil
}

func (r *SimRadio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("stop")
	r.started = false
	r.hosting = false
	r.up = false
	r.joining = nil
	return nil
}

func (r *SimRadio) Scan() ([]AccessPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("scan")
	if !r.started {
		return nil, errors.New("radio not started")
	}
	aps := make([]AccessPoint, len(r.networks))
	for i, n := range r.networks {
		aps[i] = n.AccessPoint
	}
	return aps, nil
}

func (r *SimRadio) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("connect:" + r.client.SSID)
	if !r.started {
		return errors.New("radio not started")
	}
	r.up = false
	r.polls = 0
	r.joining = nil
	for i := range r.networks {
		if r.networks[i].SSID == r.client.SSID && r.networks[i].Password == r.client.Password {
			r.joining = &r.networks[i]
		}
	}
	return nil
}

func (r *SimRadio) IsUp() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joining != nil && !r.up {
		r.polls++
		r.up = r.polls > r.upAfter
	}
	return r.up, nil
}

func (r *SimRadio) IsConnected() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.up, nil
}

func (r *SimRadio) StationIP() (IPInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.up {
		return IPInfo{}, errors.New("no station address")
	}
	return IPInfo{IP: "192.168.1.50", Gateway: "192.168.1.1"}, nil
}

func (r *SimRadio) APIP() (IPInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hosting {
		return IPInfo{}, errors.New("access point not running")
	}
	return IPInfo{IP: "192.168.71.1", Gateway: "192.168.71.1"}, nil
}
