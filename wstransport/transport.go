// Package wstransport implements the session.Transport contract over a
// websocket XML stream: one stanza per text frame, framed open/close
// elements, PLAIN authentication, resource binding, and stream-management
// resume signaling.
package wstransport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/bridge"
	"github.com/opd-ai/fedchat/session"
	"github.com/opd-ai/fedchat/wire"
)

// ErrStreamClosed is returned by Send after the stream ended.
var ErrStreamClosed = errors.New("websocket stream closed")

// Dialer dials a websocket chat server and negotiates the stream.
type Dialer struct {
	// URL is the websocket endpoint, e.g. "wss://chat.example.com/ws".
	URL string
	// Domain is the server's stream domain, used in the framed open and
	// as the authenticated address's domainpart.
	Domain string

	// WS allows customizing the underlying websocket dialer.
	WS *websocket.Dialer
}

// NewDialer creates a dialer for one server endpoint.
func NewDialer(url, domain string) *Dialer {
	return &Dialer{URL: url, Domain: domain, WS: websocket.DefaultDialer}
}

// Dial implements session.Dialer: it connects, authenticates with the
// federation credentials, binds a resource, and returns the running
// transport with the online event already queued.
func (d *Dialer) Dial(ctx context.Context, creds bridge.Credentials) (session.Transport, error) {
	ws := d.WS
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	conn, _, err := ws.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s failed: %w", d.URL, err)
	}

	t := &Transport{
		conn:    conn,
		domain:  d.Domain,
		stanzas: make(chan *wire.Element, 64),
		events:  make(chan session.Event, 16),
		done:    make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component": "wstransport",
			"domain":    d.Domain,
		}),
	}

	if err := t.negotiate(creds); err != nil {
		conn.Close()
		return nil, err
	}

	// Queue the online event before the read loop starts so it is the
	// first thing the session observes.
	t.events <- session.Event{Type: session.EventOnline}
	go t.readLoop()
	return t, nil
}

// Transport is one negotiated websocket stream.
type Transport struct {
	conn    *websocket.Conn
	domain  string
	stanzas chan *wire.Element
	events  chan session.Event
	log     *logrus.Entry

	// writeMu serializes frame writes; the websocket connection allows
	// only one concurrent writer.
	writeMu sync.Mutex

	// done is closed when the stream is shutting down. The read loop is
	// the only goroutine that closes stanzas and events; Close signals
	// it through done and the underlying connection.
	done chan struct{}

	mu       sync.Mutex
	identity string
	closed   bool
}

// negotiate runs the blocking pre-stream handshake: framed open, PLAIN
// auth, stream restart, resource bind.
func (t *Transport) negotiate(creds bridge.Credentials) error {
	if err := t.openStream(); err != nil {
		return err
	}

	auth := wire.New("auth", map[string]string{
		"xmlns":     wire.NSSASL,
		"mechanism": "PLAIN",
	})
	auth.SetText(base64.StdEncoding.EncodeToString(
		[]byte("\x00" + creds.Username + "\x00" + creds.Password)))
	if err := t.write(auth); err != nil {
		return err
	}

	resp, err := t.readElement()
	if err != nil {
		return err
	}
	if resp.Name != "success" {
		return fmt.Errorf("authentication refused: <%s>", resp.Name)
	}

	// The stream restarts after authentication.
	if err := t.openStream(); err != nil {
		return err
	}

	bind := wire.New("iq", map[string]string{
		"id":   wire.CorrelationID("bind"),
		"type": "set",
	})
	bind.AddChild(wire.New("bind", map[string]string{"xmlns": wire.NSBind}))
	if err := t.write(bind); err != nil {
		return err
	}

	result, err := t.readElement()
	if err != nil {
		return err
	}
	jid := result.Find("jid")
	if result.Attr("type") != "result" || jid == nil || jid.Text == "" {
		return errors.New("resource bind failed")
	}

	t.mu.Lock()
	t.identity = jid.Text
	t.mu.Unlock()

	// Ask the server to track the stream so it can be resumed.
	return t.write(wire.New("enable", map[string]string{
		"xmlns":  wire.NSStreamMgmt,
		"resume": "true",
	}))
}

// openStream sends the framed open and consumes elements until the
// server's answering open arrives.
func (t *Transport) openStream() error {
	open := wire.New("open", map[string]string{
		"xmlns":   wire.NSFraming,
		"to":      t.domain,
		"version": "1.0",
	})
	if err := t.write(open); err != nil {
		return err
	}

	for {
		el, err := t.readElement()
		if err != nil {
			return err
		}
		switch el.Name {
		case "open":
			return nil
		case "features":
			// Pre-open feature advertisements are skipped.
		default:
			return fmt.Errorf("unexpected <%s> during stream open", el.Name)
		}
	}
}

func (t *Transport) readElement() (*wire.Element, error) {
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("websocket read failed: %w", err)
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket frame type %d", msgType)
	}
	return wire.Parse(data)
}

func (t *Transport) write(el *wire.Element) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, []byte(el.String()))
}

// readLoop turns inbound frames into stanzas until the stream ends.
// Framing and stream-management elements are consumed here; everything
// else is handed to the session. It owns the stanza and event channels:
// nothing else ever closes them, so stanza delivery blocks instead of
// dropping when the session falls behind.
func (t *Transport) readLoop() {
	var streamErr error

loop:
	for {
		el, err := t.readElement()
		if err != nil {
			// A read failure after Close is the expected wakeup, not
			// a stream error.
			if t.markClosed() {
				streamErr = err
			}
			break loop
		}

		switch {
		case el.Name == "close" && el.Namespace() == wire.NSFraming:
			break loop
		case el.Name == "resumed" && el.Namespace() == wire.NSStreamMgmt:
			t.emit(session.Event{Type: session.EventResumed})
		case el.Name == "enabled" && el.Namespace() == wire.NSStreamMgmt:
			// Resume tracking acknowledged, nothing to surface.
		case el.Name == "r" && el.Namespace() == wire.NSStreamMgmt:
			// Ack requests are answered but not surfaced.
			if err := t.write(wire.New("a", map[string]string{"xmlns": wire.NSStreamMgmt})); err != nil {
				if t.markClosed() {
					streamErr = err
				}
				break loop
			}
		default:
			select {
			case t.stanzas <- el:
			case <-t.done:
				break loop
			}
		}
	}

	t.markClosed()
	if streamErr != nil {
		t.emit(session.Event{Type: session.EventError, Err: streamErr})
	}
	t.emit(session.Event{Type: session.EventClosed, Err: streamErr})
	close(t.stanzas)
	close(t.events)
}

func (t *Transport) emit(ev session.Event) {
	select {
	case t.events <- ev:
	default:
		t.log.WithFields(logrus.Fields{
			"function": "emit",
			"event":    ev.Type,
		}).Warn("Event buffer full, dropping event")
	}
}

// markClosed flags the stream as ended and wakes the read loop. It
// reports whether this call was the one that closed the stream.
func (t *Transport) markClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	close(t.done)
	t.conn.Close()
	return true
}

// Send implements session.Transport.Send.
func (t *Transport) Send(el *wire.Element) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}
	return t.write(el)
}

// Stanzas implements session.Transport.Stanzas.
func (t *Transport) Stanzas() <-chan *wire.Element { return t.stanzas }

// Events implements session.Transport.Events.
func (t *Transport) Events() <-chan session.Event { return t.events }

// Identity implements session.Transport.Identity.
func (t *Transport) Identity() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.identity
}

// Close implements session.Transport.Close. It signals the read loop,
// which drains out and closes the stanza and event channels.
func (t *Transport) Close() error {
	t.write(wire.New("close", map[string]string{"xmlns": wire.NSFraming}))
	t.markClosed()
	return nil
}
