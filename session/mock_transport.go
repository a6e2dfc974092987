package session

import (
	"sync"

	"github.com/opd-ai/fedchat/wire"
)

// MockTransport implements Transport for testing. Tests inject inbound
// stanzas and lifecycle events and inspect what was sent.
type MockTransport struct {
	mu       sync.Mutex
	sent     []*wire.Element
	sendFunc func(el *wire.Element) error
	identity string
	closed   bool

	stanzas chan *wire.Element
	events  chan Event
}

// NewMockTransport creates a mock transport with buffered channels.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		stanzas: make(chan *wire.Element, 64),
		events:  make(chan Event, 16),
	}
}

// Send implements Transport.Send, recording the stanza.
func (m *MockTransport) Send(el *wire.Element) error {
	m.mu.Lock()
	m.sent = append(m.sent, el)
	fn := m.sendFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(el)
	}
	return nil
}

// Stanzas implements Transport.Stanzas.
func (m *MockTransport) Stanzas() <-chan *wire.Element { return m.stanzas }

// Events implements Transport.Events.
func (m *MockTransport) Events() <-chan Event { return m.events }

// Identity implements Transport.Identity.
func (m *MockTransport) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Close implements Transport.Close, closing both channels once.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stanzas)
	close(m.events)
	return nil
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetIdentity sets the negotiated identity the transport reports.
func (m *MockTransport) SetIdentity(identity string) {
	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()
}

// SetSendFunc programs a send outcome, e.g. a simulated failure.
func (m *MockTransport) SetSendFunc(fn func(el *wire.Element) error) {
	m.mu.Lock()
	m.sendFunc = fn
	m.mu.Unlock()
}

// Inject delivers an inbound stanza to the session.
func (m *MockTransport) Inject(el *wire.Element) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		m.stanzas <- el
	}
}

// Emit delivers a lifecycle event to the session.
func (m *MockTransport) Emit(ev Event) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		m.events <- ev
	}
}

// Sent returns a copy of every stanza sent so far.
func (m *MockTransport) Sent() []*wire.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*wire.Element(nil), m.sent...)
}
