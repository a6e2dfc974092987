package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
	"github.com/opd-ai/fedchat/wire"
)

const (
	// DefaultResumePollInterval is how often the session polls for the
	// negotiated identity after a stream resume. Some transports do not
	// fire their online event on resume, so the session polls and
	// synthesizes the transition itself.
	DefaultResumePollInterval = 10 * time.Millisecond

	// resumePollWindow bounds the post-resume identity poll.
	resumePollWindow = 5 * time.Second
)

// ErrSessionClosed is returned by in-flight requests when the session is
// torn down.
var ErrSessionClosed = errors.New("session closed")

// KeyResolver looks up a member's published public key hex from local
// state. It must not block.
type KeyResolver func(memberID string) (string, bool)

// Config carries the session's collaborators and tuning.
type Config struct {
	FederationID string

	// Keys is the authenticated member's encryption key pair, used to
	// decrypt inbound direct messages.
	Keys *crypto.KeyPair

	// ResolveKey resolves senders' public keys for decryption.
	ResolveKey KeyResolver

	Handlers Handlers

	// OnAnyStanza is an internal observation hook invoked for every
	// inbound stanza before dispatch; the liveness monitor hangs off it.
	OnAnyStanza func()

	ResumePollInterval time.Duration
}

// Session multiplexes all protocol traffic for one federation over one
// transport. Request/response pairs are correlated by stanza id; inbound
// stanzas additionally feed pending matchers registered with Await.
type Session struct {
	cfg       Config
	transport Transport
	log       *logrus.Entry

	mu       sync.Mutex
	awaiters map[string]*awaiter
	status   chat.ConnectionStatus
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

type awaiter struct {
	match func(*wire.Element) bool
	ch    chan *wire.Element
}

// New creates a session over an established transport and starts its
// dispatch loop.
func New(cfg Config, transport Transport) *Session {
	if cfg.ResumePollInterval <= 0 {
		cfg.ResumePollInterval = DefaultResumePollInterval
	}
	s := &Session{
		cfg:       cfg,
		transport: transport,
		log: logrus.WithFields(logrus.Fields{
			"component":  "session",
			"federation": cfg.FederationID,
		}),
		awaiters: make(map[string]*awaiter),
		status:   chat.ConnectionConnecting,
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Status returns the current connection status.
func (s *Session) Status() chat.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Identity returns the negotiated stream address, or "".
func (s *Session) Identity() string {
	return s.transport.Identity()
}

// Send writes one stanza to the stream.
func (s *Session) Send(el *wire.Element) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()
	return s.transport.Send(el)
}

// Request sends a query and waits for the stanza answering it, matched by
// id. The wait is unbounded; callers bound it through ctx. Concurrent
// requests never observe each other's responses.
func (s *Session) Request(ctx context.Context, query *wire.Element) (*wire.Element, error) {
	id := query.Attr("id")
	if id == "" {
		return nil, errors.New("request stanza has no id")
	}
	return s.sendAndAwait(ctx, query, func(el *wire.Element) bool {
		return el.Attr("id") == id
	})
}

// Await registers a one-shot matcher against the inbound stream without
// sending anything.
func (s *Session) Await(ctx context.Context, match func(*wire.Element) bool) (*wire.Element, error) {
	return s.sendAndAwait(ctx, nil, match)
}

func (s *Session) sendAndAwait(ctx context.Context, query *wire.Element, match func(*wire.Element) bool) (*wire.Element, error) {
	key := uuid.NewString()
	a := &awaiter{match: match, ch: make(chan *wire.Element, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.awaiters[key] = a
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.awaiters, key)
		s.mu.Unlock()
	}()

	if query != nil {
		if err := s.transport.Send(query); err != nil {
			return nil, err
		}
	}

	select {
	case el := <-a.ch:
		return el, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

// Close tears the session down: it drops every pending awaiter, stops the
// dispatch loop, and closes the transport before returning, so no event
// can fire into a session about to be replaced.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.awaiters = make(map[string]*awaiter)
	s.mu.Unlock()

	close(s.done)
	err := s.transport.Close()
	s.wg.Wait()
	return err
}

func (s *Session) run() {
	defer s.wg.Done()

	stanzas := s.transport.Stanzas()
	events := s.transport.Events()

	for {
		select {
		case <-s.done:
			return

		case el, ok := <-stanzas:
			if !ok {
				s.transition(chat.ConnectionOffline, nil)
				return
			}
			s.observe(el)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) observe(el *wire.Element) {
	if s.cfg.OnAnyStanza != nil {
		s.cfg.OnAnyStanza()
	}

	// Correlated waiters get first chance; each fires at most once.
	s.mu.Lock()
	for key, a := range s.awaiters {
		if a.match(el) {
			delete(s.awaiters, key)
			a.ch <- el
		}
	}
	s.mu.Unlock()

	// One malformed stanza must never take down stream processing.
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"function": "observe",
				"stanza":   el.Name,
				"panic":    r,
			}).Error("Dispatch panicked on stanza")
		}
	}()
	s.dispatch(el)
}

func (s *Session) handleEvent(ev Event) {
	switch ev.Type {
	case EventOnline:
		s.transition(chat.ConnectionOnline, nil)
		identity := s.transport.Identity()
		h := s.cfg.Handlers.OnOnline
		if h != nil {
			safeEmit(s.log, "OnOnline", func() { h(identity) })
		}

	case EventResumed:
		// The transport does not reliably fire online on resume; poll
		// briefly for the negotiated identity, then synthesize the
		// normal online transition.
		s.wg.Add(1)
		go s.pollResumedIdentity()

	case EventError:
		s.transition(chat.ConnectionError, ev.Err)

	case EventClosed:
		s.transition(chat.ConnectionOffline, ev.Err)
	}
}

func (s *Session) pollResumedIdentity() {
	defer s.wg.Done()

	deadline := time.Now().Add(resumePollWindow)
	ticker := time.NewTicker(s.cfg.ResumePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if identity := s.transport.Identity(); identity != "" {
				s.transition(chat.ConnectionOnline, nil)
				h := s.cfg.Handlers.OnOnline
				if h != nil {
					safeEmit(s.log, "OnOnline", func() { h(identity) })
				}
				return
			}
			if time.Now().After(deadline) {
				s.log.WithField("function", "pollResumedIdentity").
					Warn("No identity after stream resume")
				return
			}
		}
	}
}

func (s *Session) transition(status chat.ConnectionStatus, err error) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"function": "transition",
		"status":   status.String(),
	}).Info("Connection status changed")

	h := s.cfg.Handlers.OnStatus
	if h != nil {
		safeEmit(s.log, "OnStatus", func() { h(status, err) })
	}
}
