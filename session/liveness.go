package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLivenessTimeout is how long after a probe the monitor waits for
// any stanza before declaring the stream dead.
const DefaultLivenessTimeout = 3 * time.Second

// Monitor detects silently-broken streams. Some transports can stop
// delivering without surfacing a connection error; the monitor sends a
// probe and, if nothing at all arrives within the timeout, tears the
// session down and rebuilds it rather than attempting soft recovery.
type Monitor struct {
	timeout time.Duration
	log     *logrus.Entry

	// markHealthy records stream health in the federation state.
	markHealthy func(bool)
	// probe sends the liveness presence.
	probe func() error
	// rebuild disconnects and reconnects the whole session.
	rebuild func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewMonitor creates a liveness monitor. A timeout of 0 selects
// DefaultLivenessTimeout.
func NewMonitor(federationID string, timeout time.Duration, markHealthy func(bool), probe func() error, rebuild func()) *Monitor {
	if timeout <= 0 {
		timeout = DefaultLivenessTimeout
	}
	return &Monitor{
		timeout:     timeout,
		markHealthy: markHealthy,
		probe:       probe,
		rebuild:     rebuild,
		log: logrus.WithFields(logrus.Fields{
			"component":  "liveness",
			"federation": federationID,
		}),
	}
}

// SuspectStale marks the stream unhealthy, sends a probe, and arms the
// timeout. If a probe is already outstanding the call is a no-op.
func (m *Monitor) SuspectStale() {
	m.mu.Lock()
	if m.stopped || m.timer != nil {
		m.mu.Unlock()
		return
	}
	m.markHealthy(false)
	m.timer = time.AfterFunc(m.timeout, m.expire)
	m.mu.Unlock()

	m.log.WithField("function", "SuspectStale").Debug("Probing suspected-stale stream")
	if err := m.probe(); err != nil {
		m.log.WithField("function", "SuspectStale").WithError(err).Warn("Liveness probe send failed")
	}
}

// ObserveStanza records proof of life: any inbound stanza marks the
// stream healthy and disarms a pending timeout.
func (m *Monitor) ObserveStanza() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.markHealthy(true)
}

// Stop disarms the monitor permanently. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) expire() {
	m.mu.Lock()
	if m.stopped || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	m.log.WithField("function", "expire").
		Warn("No stanza within liveness timeout, rebuilding session")
	m.rebuild()
}
