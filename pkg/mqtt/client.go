// Package mqtt wraps a persistent MQTT 3.1.1 connection that survives broker
// and network outages and tells the application when to resubscribe.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/itohio/doorbell/pkg/metrics"
	"github.com/itohio/doorbell/pkg/retry"
)

const (
	// DefaultConnectTimeout bounds the initial connect wait in New.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultOperationTimeout bounds a single subscribe or publish.
	DefaultOperationTimeout = 5 * time.Second
	// SubscribeAttempts is the number of subscribe attempts before giving up.
	SubscribeAttempts = 5

	eventBufferSize = 64
)

// ErrInvalidURL is returned for broker URLs the client cannot use.
var ErrInvalidURL = errors.New("invalid MQTT URL")

var validSchemes = []string{"mqtt", "mqtts", "tcp", "ssl", "tls", "ws", "wss"}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConnectTimeout sets how long New waits for the first connection.
// The client keeps trying in the background after that.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithOperationTimeout sets the subscribe/publish acknowledgement timeout.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) { c.opTimeout = d }
}

// WithBackoff overrides the subscribe retry policy.
func WithBackoff(b retry.ExponentialBackoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithReconnectInterval caps the delay between transport reconnect attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) { c.reconnectInterval = d }
}

// Client is a resilient MQTT client. Messages for subscribed topics and
// reconnect notifications are delivered on the event channel returned by New.
type Client struct {
	url      string
	clientID string
	logger   *slog.Logger

	connectTimeout    time.Duration
	opTimeout         time.Duration
	reconnectInterval time.Duration
	backoff           retry.ExponentialBackoff

	conn      paho.Client
	transport chan transportEvent
	events    chan Event

	mu     sync.Mutex
	topics []string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a client for brokerURL and starts connecting. A random suffix
// is appended to clientID so several devices can share one configuration.
func New(brokerURL, clientID string, opts ...Option) (*Client, <-chan Event, error) {
	if err := CheckURL(brokerURL); err != nil {
		return nil, nil, err
	}

	c := &Client{
		url:               brokerURL,
		clientID:          fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8]),
		logger:            slog.Default(),
		connectTimeout:    DefaultConnectTimeout,
		opTimeout:         DefaultOperationTimeout,
		reconnectInterval: 30 * time.Second,
		backoff:           retry.ExponentialBackoff{MaxAttempts: SubscribeAttempts, MinInterval: 250 * time.Millisecond, MaxInterval: 4 * time.Second},
		transport:         make(chan transportEvent, eventBufferSize),
		events:            make(chan Event, eventBufferSize),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "mqtt", "client_id", c.clientID)
	if c.backoff.Logger == nil {
		c.backoff.Logger = c.logger
	}

	o := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(c.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetMaxReconnectInterval(c.reconnectInterval).
		SetOrderMatters(false).
		SetOnConnectHandler(func(paho.Client) {
			c.push(transportEvent{kind: transportConnected})
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.push(transportEvent{kind: transportDisconnected, err: err})
		}).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			c.push(transportEvent{kind: transportReconnecting})
		}).
		SetDefaultPublishHandler(func(_ paho.Client, m paho.Message) {
			c.push(transportEvent{kind: transportMessage, topic: m.Topic(), payload: m.Payload()})
		})

	c.conn = paho.NewClient(o)

	c.wg.Add(1)
	go c.run()

	c.logger.Info("connecting", "url", brokerURL)
	token := c.conn.Connect()
	if token.WaitTimeout(c.connectTimeout) {
		if err := token.Error(); err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("failed to connect to %s: %w", brokerURL, err)
		}
	} else {
		c.logger.Warn("broker not reachable yet, retrying in background", "timeout", c.connectTimeout)
	}

	return c, c.events, nil
}

// ClientID returns the effective client id including the random suffix.
func (c *Client) ClientID() string {
	return c.clientID
}

// IsConnected reports whether the transport is currently up.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnectionOpen()
}

// Subscribe subscribes to topic at QoS 0, retrying with capped exponential
// backoff before surfacing the last error.
func (c *Client) Subscribe(ctx context.Context, topic string) error {
	err := c.backoff.Start(ctx, "subscribe "+topic, func(context.Context) (bool, error) {
		if err := c.wait(c.conn.Subscribe(topic, 0, nil)); err != nil {
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	c.mu.Lock()
	if !slices.Contains(c.topics, topic) {
		c.topics = append(c.topics, topic)
	}
	c.mu.Unlock()

	c.logger.Info("subscribed", "topic", topic)
	return nil
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(topic string) error {
	if err := c.wait(c.conn.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, err)
	}

	c.mu.Lock()
	c.topics = slices.DeleteFunc(c.topics, func(t string) bool { return t == topic })
	c.mu.Unlock()

	c.logger.Info("unsubscribed", "topic", topic)
	return nil
}

// Topics returns the topics subscribed through this client.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.topics)
}

// Publish sends payload to topic at QoS 0.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	if err := c.wait(c.conn.Publish(topic, 0, retain, payload)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects and closes the event channel.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Disconnect(250)
		close(c.done)
		c.wg.Wait()
		c.logger.Info("closed")
	})
}

func (c *Client) wait(token paho.Token) error {
	if !token.WaitTimeout(c.opTimeout) {
		return fmt.Errorf("timed out after %s", c.opTimeout)
	}
	return token.Error()
}

// push is called from the transport goroutines. Connection events are never
// dropped; messages are dropped when the application falls behind.
func (c *Client) push(ev transportEvent) {
	if ev.kind == transportMessage {
		select {
		case c.transport <- ev:
		case <-c.done:
		default:
			c.logger.Warn("event queue full, dropping message", "topic", ev.topic)
		}
		return
	}

	select {
	case c.transport <- ev:
	case <-c.done:
	}
}

// run is the connection event loop.
func (c *Client) run() {
	defer c.wg.Done()
	defer close(c.events)

	var cl classifier
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.transport:
			metrics.IncMQTTEvent(ev.kind.String())
			switch ev.kind {
			case transportDisconnected:
				c.logger.Warn("connection lost", "err", ev.err)
			case transportConnected:
				c.logger.Info("connected")
			case transportReconnecting:
				c.logger.Debug("reconnecting")
			}

			out, ok := cl.classify(ev)
			if !ok {
				continue
			}
			if out.Kind == EventReconnected {
				metrics.IncMQTTEvent("reconnected")
			}

			select {
			case c.events <- out:
			case <-c.done:
				return
			}
		}
	}
}

// CheckURL validates a broker URL such as mqtt://host:1883.
func CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !slices.Contains(validSchemes, u.Scheme) {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("%w: bad port %q", ErrInvalidURL, p)
		}
	}
	return nil
}
