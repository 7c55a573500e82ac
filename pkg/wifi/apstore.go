package wifi

import (
	"fmt"
	"hash/fnv"

	"github.com/itohio/doorbell/pkg/store"
)

const apsKey = "aps"

// APStore keeps the known access points in the credential store.
// The full list lives under "aps"; each entry is also kept under a short
// per-SSID key so a single lookup does not decode the whole list.
type APStore struct {
	store store.Store
}

func NewAPStore(s store.Store) *APStore {
	return &APStore{store: s}
}

// List returns the known access points keyed by SSID.
func (a *APStore) List() (map[string]APConfig, error) {
	aps := make(map[string]APConfig)
	if _, err := a.store.Get(apsKey, &aps); err != nil {
		return nil, fmt.Errorf("failed to load known access points: %w", err)
	}
	return aps, nil
}

// Get returns the config stored for ssid.
func (a *APStore) Get(ssid string) (APConfig, bool, error) {
	var cfg APConfig
	ok, err := a.store.Get(apKey(ssid), &cfg)
	if err != nil {
		return APConfig{}, false, fmt.Errorf("failed to load %q: %w", ssid, err)
	}
	return cfg, ok, nil
}

// Add validates and stores cfg, replacing any entry with the same SSID.
func (a *APStore) Add(cfg APConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	aps, err := a.List()
	if err != nil {
		return err
	}
	aps[cfg.SSID] = cfg
	if err := a.store.Set(apsKey, aps); err != nil {
		return fmt.Errorf("failed to store known access points: %w", err)
	}
	return a.store.Set(apKey(cfg.SSID), cfg)
}

// Delete forgets ssid. Deleting an unknown SSID is not an error.
func (a *APStore) Delete(ssid string) error {
	aps, err := a.List()
	if err != nil {
		return err
	}
	delete(aps, ssid)
	if err := a.store.Set(apsKey, aps); err != nil {
		return fmt.Errorf("failed to store known access points: %w", err)
	}
	return a.store.Delete(apKey(ssid))
}

func apKey(ssid string) string {
	return "ap." + HashSSID(ssid)
}

// HashSSID derives a 15 character key from an SSID: the low 60 bits of its
// 64-bit FNV-1a hash as hex, least significant nibble first.
func HashSSID(ssid string) string {
	const hexChars = "0123456789abcdef"

	h := fnv.New64a()
	h.Write([]byte(ssid))
	sum := h.Sum64()

	var buf [15]byte
	for i := range buf {
		buf[i] = hexChars[sum&0xf]
		sum >>= 4
	}
	return string(buf[:])
}
