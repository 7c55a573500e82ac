// Package notify delivers push notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultPushoverURL = "https://api.pushover.net/1/messages.json"
	DefaultRingMessage = "DOORBELL"

	// ConfigKey is the credential store key of PushoverConfig.
	ConfigKey = "pushover"
)

// ErrDisabled is returned by Send when notifications are switched off.
var ErrDisabled = errors.New("pushover disabled")

// PushoverConfig holds the Pushover application settings.
type PushoverConfig struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	Token       string `json:"token"`
	User        string `json:"user"`
	RingMessage string `json:"ring_message"`
}

// WithDefaults fills the empty URL and message.
func (c PushoverConfig) WithDefaults() PushoverConfig {
	if c.URL == "" {
		c.URL = DefaultPushoverURL
	}
	if c.RingMessage == "" {
		c.RingMessage = DefaultRingMessage
	}
	return c
}

// Validate checks that an enabled config can be used.
func (c PushoverConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Token == "" || c.User == "" {
		return errors.New("pushover token and user are required")
	}
	return nil
}

type pushoverPayload struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// Pushover sends messages through the Pushover API.
type Pushover struct {
	cfg    PushoverConfig
	client *http.Client
	logger *slog.Logger
}

// Option configures Pushover.
type Option func(*Pushover)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pushover) {
		if client != nil {
			p.client = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pushover) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPushover(cfg PushoverConfig, opts ...Option) *Pushover {
	p := &Pushover{
		cfg:    cfg.WithDefaults(),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pushover")
	return p
}

// Enabled reports whether Send will deliver anything.
func (p *Pushover) Enabled() bool {
	return p.cfg.Enabled
}

// Ring sends the configured ring message.
func (p *Pushover) Ring(ctx context.Context) error {
	return p.Send(ctx, p.cfg.RingMessage)
}

// Send posts message. Each call builds a new request.
func (p *Pushover) Send(ctx context.Context, message string) error {
	if !p.cfg.Enabled {
		return ErrDisabled
	}

	body, err := json.Marshal(pushoverPayload{
		Token:   p.cfg.Token,
		User:    p.cfg.User,
		Message: message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	p.logger.Info("-> POST", "url", p.cfg.URL)
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send pushover message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	p.logger.Info("<-", "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pushover: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
