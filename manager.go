package fedchat

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/bridge"
	"github.com/opd-ai/fedchat/session"
)

// Manager is the registry of per-federation clients. Clients are created
// on first access and removed on explicit teardown; federations are
// otherwise fully independent of each other.
type Manager struct {
	engine bridge.Engine
	dialer session.Dialer
	opts   *Options

	mu      sync.Mutex
	clients map[string]*Client
}

// NewManager creates a manager. Nil options select defaults, shared by
// every client the manager creates.
func NewManager(engine bridge.Engine, dialer session.Dialer, opts *Options) *Manager {
	if opts == nil {
		opts = NewOptions()
	}
	return &Manager{
		engine:  engine,
		dialer:  dialer,
		opts:    opts,
		clients: make(map[string]*Client),
	}
}

// Client returns the federation's client, creating it on first access.
func (m *Manager) Client(federationID string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[federationID]; ok {
		return c
	}
	c := NewClient(federationID, m.engine, m.dialer, m.opts)
	m.clients[federationID] = c
	return c
}

// Existing returns the federation's client only if one was already
// created.
func (m *Manager) Existing(federationID string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[federationID]
	return c, ok
}

// Remove disconnects the federation's client and drops it from the
// registry.
func (m *Manager) Remove(federationID string) {
	m.mu.Lock()
	c, ok := m.clients[federationID]
	delete(m.clients, federationID)
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := c.Disconnect(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Remove",
			"federation": federationID,
		}).WithError(err).Warn("Client teardown error")
	}
}

// Close disconnects and removes every client.
func (m *Manager) Close() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for id, c := range clients {
		if err := c.Disconnect(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Close",
				"federation": id,
			}).WithError(err).Warn("Client teardown error")
		}
	}
}
