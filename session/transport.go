// Package session implements the per-federation connection session: it
// owns the stream transport, tracks connection status, correlates
// request/response pairs, dispatches inbound stanzas to typed handlers,
// and detects silently-dead streams through the liveness monitor.
package session

import (
	"context"

	"github.com/opd-ai/fedchat/bridge"
	"github.com/opd-ai/fedchat/wire"
)

// EventType identifies a transport lifecycle event.
type EventType uint8

const (
	// EventOnline fires when the stream is negotiated and an identity is
	// available.
	EventOnline EventType = iota
	// EventResumed fires when the transport resumed a previous stream.
	// Transports are not required to fire EventOnline after a resume;
	// the session polls for the identity instead.
	EventResumed
	// EventError fires on a stream error.
	EventError
	// EventClosed fires when the stream ends.
	EventClosed
)

// Event is one transport lifecycle notification.
type Event struct {
	Type EventType
	Err  error
}

// Transport is the pluggable stream boundary: it delivers parsed stanzas
// and accepts stanzas to send. Implementations must support stream
// resumption and close both channels when the stream ends.
type Transport interface {
	// Send writes one stanza to the stream.
	Send(el *wire.Element) error

	// Stanzas delivers inbound parsed stanzas.
	Stanzas() <-chan *wire.Element

	// Events delivers lifecycle events.
	Events() <-chan Event

	// Identity returns the negotiated stream address once available,
	// "" before that.
	Identity() string

	// Close tears the stream down.
	Close() error
}

// Dialer establishes a transport from federation credentials.
type Dialer interface {
	Dial(ctx context.Context, creds bridge.Credentials) (Transport, error)
}
