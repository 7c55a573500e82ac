package wifi

// Radio is the WiFi driver the Manager steers. Configuration calls only
// record what the next Start should bring up.
type Radio interface {
	// SetClientConfig selects station mode. A zero config is the default
	// client configuration used for scanning.
	SetClientConfig(cfg APConfig) error
	// SetAPConfig selects access point mode on the given channel.
	SetAPConfig(cfg APConfig, channel int) error
	Start() error
	Stop() error
	// Scan blocks until the scan completes.
	Scan() ([]AccessPoint, error)
	// Connect starts joining the configured network without waiting.
	Connect() error
	// IsUp reports a joined link with an address.
	IsUp() (bool, error)
	// IsConnected reports association with the access point.
	IsConnected() (bool, error)
	StationIP() (IPInfo, error)
	APIP() (IPInfo, error)
}

// APChannel is the channel the fallback access point is hosted on.
const APChannel = 1
