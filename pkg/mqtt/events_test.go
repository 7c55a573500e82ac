package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func classifyAll(evs ...transportEvent) []Event {
	var (
		c   classifier
		out []Event
	)
	for _, ev := range evs {
		if e, ok := c.classify(ev); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestClassify_FirstConnectIsSilent(t *testing.T) {
	assert.Empty(t, classifyAll(transportEvent{kind: transportConnected}))
}

func TestClassify_OneReconnectPerOutage(t *testing.T) {
	out := classifyAll(
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportDisconnected},
		transportEvent{kind: transportReconnecting},
		transportEvent{kind: transportReconnecting},
		transportEvent{kind: transportReconnecting},
		transportEvent{kind: transportConnected},
	)
	assert.Equal(t, []Event{{Kind: EventReconnected}}, out)
}

func TestClassify_LostCallbackAfterReconnect(t *testing.T) {
	out := classifyAll(
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportReconnecting},
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportDisconnected},
	)
	assert.Equal(t, []Event{{Kind: EventReconnected}}, out)

	// The late lost callback is folded into the next outage.
	out = classifyAll(
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportReconnecting},
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportDisconnected},
		transportEvent{kind: transportReconnecting},
		transportEvent{kind: transportConnected},
	)
	assert.Equal(t, []Event{{Kind: EventReconnected}, {Kind: EventReconnected}}, out)
}

func TestClassify_TwoOutages(t *testing.T) {
	out := classifyAll(
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportDisconnected},
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportDisconnected},
		transportEvent{kind: transportDisconnected},
		transportEvent{kind: transportConnected},
	)
	assert.Equal(t, []Event{{Kind: EventReconnected}, {Kind: EventReconnected}}, out)
}

func TestClassify_Messages(t *testing.T) {
	out := classifyAll(
		transportEvent{kind: transportConnected},
		transportEvent{kind: transportMessage, topic: "home/doorbell", payload: []byte("ON")},
		transportEvent{kind: transportDisconnected},
		transportEvent{kind: transportMessage, topic: "home/doorbell", payload: []byte("OFF")},
	)
	assert.Equal(t, []Event{
		{Kind: EventMessage, Topic: "home/doorbell", Payload: []byte("ON")},
		{Kind: EventMessage, Topic: "home/doorbell", Payload: []byte("OFF")},
	}, out)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "Message", EventMessage.String())
	assert.Equal(t, "Reconnected", EventReconnected.String())
	assert.Equal(t, "EventKind(7)", EventKind(7).String())
}
