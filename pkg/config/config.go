package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the device configuration.
// WiFi credentials and MQTT/Pushover settings are not part of it: they live
// in the credential store and are written by the provisioning commands.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Sampler    SamplerConfig    `yaml:"sampler"`
	Wifi       WifiConfig       `yaml:"wifi"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	LED        LEDConfig        `yaml:"led"`
	Store      StoreConfig      `yaml:"store"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
	Mock       MockConfig       `yaml:"mock"`
}

// SerialConfig contains the MCU serial link configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SamplerConfig contains frame assembly parameters.
type SamplerConfig struct {
	FrameLen    int           `yaml:"frame_len"`    // Samples per frame (50 = 50ms at 1kHz, 100 for noisy installs)
	FullScale   float32       `yaml:"full_scale"`   // Raw reading divisor used for normalisation
	ReadTimeout time.Duration `yaml:"read_timeout"` // Bounded wait for one hardware burst
	BurstSize   int           `yaml:"burst_size"`   // Maximum samples requested per read
	Debug       bool          `yaml:"debug"`        // Log every frame's stats
}

// WifiConfig contains connectivity parameters.
type WifiConfig struct {
	Interface        string        `yaml:"interface"`
	FallbackSSID     string        `yaml:"fallback_ssid"`
	FallbackPassword string        `yaml:"fallback_password"`
	DisableFallback  bool          `yaml:"disable_fallback"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	ReconnectEvery   int           `yaml:"reconnect_every"` // Supervisor ticks between reconnect attempts
}

// SupervisorConfig contains the orchestration loop timing.
type SupervisorConfig struct {
	Tick           time.Duration `yaml:"tick"`
	EventTimeout   time.Duration `yaml:"event_timeout"`
	StatusInterval time.Duration `yaml:"status_interval"`
	WatchFiles     bool          `yaml:"watch_files"` // Restart when the config or store file changes
}

// WatchdogConfig contains the hardware watchdog configuration.
// An empty device selects the in-process software watchdog.
type WatchdogConfig struct {
	Device  string        `yaml:"device"`
	Timeout time.Duration `yaml:"timeout"`
}

// LEDConfig contains status LED timing.
type LEDConfig struct {
	Blink  time.Duration `yaml:"blink"`  // Half period of the ring blink
	Linger int           `yaml:"linger"` // Blink cycles kept after the ring stops
}

// StoreConfig contains the credential store location.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig contains the diagnostics HTTP endpoint configuration.
// An empty listen address disables it.
type TelemetryConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MockConfig contains the simulated sensor configuration.
type MockConfig struct {
	Baseline      float64       `yaml:"baseline"`       // Quiet sensor level (fraction of full scale)
	NoiseLevel    float64       `yaml:"noise_level"`    // Quiet noise amplitude (fraction of full scale)
	RingAmplitude float64       `yaml:"ring_amplitude"` // Bell vibration amplitude (fraction of full scale)
	RingFrequency float64       `yaml:"ring_frequency"` // Bell vibration frequency (Hz)
	RingDuration  time.Duration `yaml:"ring_duration"`  // How long each simulated ring lasts
	RingPeriod    time.Duration `yaml:"ring_period"`    // Time between simulated rings
	SampleRate    time.Duration `yaml:"sample_rate"`    // Interval between simulated ADC samples
	BurstInterval time.Duration `yaml:"burst_interval"` // Interval between delivered bursts
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Sampler: SamplerConfig{
			FrameLen:    50,
			FullScale:   4096,
			ReadTimeout: 200 * time.Millisecond,
			BurstSize:   64,
			Debug:       false,
		},
		Wifi: WifiConfig{
			Interface:        "wlan0",
			FallbackSSID:     "ESP32C3-AP",
			FallbackPassword: "password",
			ConnectTimeout:   30 * time.Second,
			PollInterval:     500 * time.Millisecond,
			ReconnectEvery:   30,
		},
		Supervisor: SupervisorConfig{
			Tick:           time.Second,
			EventTimeout:   time.Second,
			StatusInterval: 30 * time.Second,
			WatchFiles:     true,
		},
		Watchdog: WatchdogConfig{
			Device:  "/dev/watchdog",
			Timeout: 60 * time.Second,
		},
		LED: LEDConfig{
			Blink:  200 * time.Millisecond,
			Linger: 5,
		},
		Store: StoreConfig{
			Path: "doorbell.db",
		},
		Telemetry: TelemetryConfig{
			Listen: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			Baseline:      0.5,
			NoiseLevel:    0.005,
			RingAmplitude: 0.3,
			RingFrequency: 20,
			RingDuration:  2 * time.Second,
			RingPeriod:    30 * time.Second,
			SampleRate:    time.Millisecond, // 1 kHz like the MCU
			BurstInterval: 10 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the sampling pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Sampler.FrameLen < 2 {
		return fmt.Errorf("invalid sampler.frame_len %d: need at least 2 samples", c.Sampler.FrameLen)
	}
	if c.Sampler.FullScale <= 0 {
		return fmt.Errorf("invalid sampler.full_scale %v: must be positive", c.Sampler.FullScale)
	}
	if len(c.Wifi.FallbackSSID) > 32 {
		return fmt.Errorf("invalid wifi.fallback_ssid: longer than 32 bytes")
	}
	if len(c.Wifi.FallbackPassword) > 64 {
		return fmt.Errorf("invalid wifi.fallback_password: longer than 64 bytes")
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sampler.FrameLen == 0 {
		c.Sampler.FrameLen = def.Sampler.FrameLen
	}
	if c.Sampler.FullScale == 0 {
		c.Sampler.FullScale = def.Sampler.FullScale
	}
	if c.Sampler.ReadTimeout == 0 {
		c.Sampler.ReadTimeout = def.Sampler.ReadTimeout
	}
	if c.Sampler.BurstSize == 0 {
		c.Sampler.BurstSize = def.Sampler.BurstSize
	}

	if c.Wifi.Interface == "" {
		c.Wifi.Interface = def.Wifi.Interface
	}
	if c.Wifi.FallbackSSID == "" {
		c.Wifi.FallbackSSID = def.Wifi.FallbackSSID
	}
	if c.Wifi.ConnectTimeout == 0 {
		c.Wifi.ConnectTimeout = def.Wifi.ConnectTimeout
	}
	if c.Wifi.PollInterval == 0 {
		c.Wifi.PollInterval = def.Wifi.PollInterval
	}
	if c.Wifi.ReconnectEvery == 0 {
		c.Wifi.ReconnectEvery = def.Wifi.ReconnectEvery
	}

	if c.Supervisor.Tick == 0 {
		c.Supervisor.Tick = def.Supervisor.Tick
	}
	if c.Supervisor.EventTimeout == 0 {
		c.Supervisor.EventTimeout = def.Supervisor.EventTimeout
	}
	if c.Supervisor.StatusInterval == 0 {
		c.Supervisor.StatusInterval = def.Supervisor.StatusInterval
	}

	if c.Watchdog.Timeout == 0 {
		c.Watchdog.Timeout = def.Watchdog.Timeout
	}

	if c.LED.Blink == 0 {
		c.LED.Blink = def.LED.Blink
	}
	if c.LED.Linger == 0 {
		c.LED.Linger = def.LED.Linger
	}

	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.BurstInterval == 0 {
		c.Mock.BurstInterval = def.Mock.BurstInterval
	}
	if c.Mock.RingPeriod == 0 {
		c.Mock.RingPeriod = def.Mock.RingPeriod
	}
	if c.Mock.RingDuration == 0 {
		c.Mock.RingDuration = def.Mock.RingDuration
	}
	if c.Mock.RingFrequency == 0 {
		c.Mock.RingFrequency = def.Mock.RingFrequency
	}
	if c.Mock.Baseline == 0 {
		c.Mock.Baseline = def.Mock.Baseline
	}
}
