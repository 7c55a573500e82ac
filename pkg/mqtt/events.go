package mqtt

import "fmt"

// EventKind identifies an application-visible MQTT event.
type EventKind int

const (
	// EventMessage carries a message received on a subscribed topic.
	EventMessage EventKind = iota
	// EventReconnected is sent when the transport came back after a
	// disconnect. The broker session is clean, so subscriptions must be
	// re-issued by the receiver.
	EventReconnected
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "Message"
	case EventReconnected:
		return "Reconnected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered on the channel returned by New.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
}

type transportKind int

const (
	transportConnected transportKind = iota
	transportDisconnected
	transportReconnecting
	transportMessage
)

func (k transportKind) String() string {
	switch k {
	case transportConnected:
		return "connected"
	case transportDisconnected:
		return "disconnected"
	case transportReconnecting:
		return "reconnecting"
	case transportMessage:
		return "message"
	default:
		return "unknown"
	}
}

// transportEvent is what the underlying client reports from its callbacks.
type transportEvent struct {
	kind    transportKind
	topic   string
	payload []byte
	err     error
}

// classifier reduces the transport event stream to application events.
// A disconnect or reconnect attempt is only remembered; the next successful
// connect after it is reported once as EventReconnected. The reconnect
// attempt is reported before the redial, while the lost connection callback
// may arrive after the new connect. Failed attempts report nothing.
type classifier struct {
	disconnected bool
}

func (c *classifier) classify(ev transportEvent) (Event, bool) {
	switch ev.kind {
	case transportMessage:
		return Event{Kind: EventMessage, Topic: ev.topic, Payload: ev.payload}, true
	case transportDisconnected, transportReconnecting:
		c.disconnected = true
	case transportConnected:
		if c.disconnected {
			c.disconnected = false
			return Event{Kind: EventReconnected}, true
		}
	}
	return Event{}, false
}
