// Package alert delivers ring events to MQTT and push notification, and
// keeps the MQTT uplink subscribed to the shared ring topic.
package alert

import (
	"errors"

	"github.com/itohio/doorbell/pkg/mqtt"
)

// ConfigKey is the credential store key of MqttConfig.
const ConfigKey = "mqtt"

const (
	DefaultClientID    = "doorbell"
	DefaultRingTopic   = "doorbell/ring"
	DefaultStatusTopic = "doorbell/status"
)

// MqttConfig holds the broker settings.
type MqttConfig struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	ClientID    string `json:"client_id"`
	RingTopic   string `json:"ring_topic"`
	StatusTopic string `json:"status_topic"`
}

// WithDefaults fills empty ids and topics.
func (c MqttConfig) WithDefaults() MqttConfig {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.RingTopic == "" {
		c.RingTopic = DefaultRingTopic
	}
	if c.StatusTopic == "" {
		c.StatusTopic = DefaultStatusTopic
	}
	return c
}

// Validate rejects an enabled config with an unusable URL.
func (c MqttConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return errors.New("mqtt url is required")
	}
	return mqtt.CheckURL(c.URL)
}
