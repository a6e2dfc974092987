package session

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/chat"
)

// Handlers is the typed callback registry for one session instance. All
// handlers are owned by the session and dropped together when it closes.
// Nil handlers are skipped. Handlers run on the session's dispatch
// goroutine; a panic in one is caught and logged, never fatal.
type Handlers struct {
	// OnStatus fires on every connection status transition.
	OnStatus func(status chat.ConnectionStatus, err error)

	// OnOnline fires when the stream is usable, with the negotiated
	// identity. It fires for synthesized post-resume transitions too.
	OnOnline func(identity string)

	// OnMessage fires for every normalized inbound chat message,
	// whether live or replayed from the archive.
	OnMessage func(msg chat.Message)

	// OnMemberSeen fires whenever a stanza names a participant.
	OnMemberSeen func(member chat.Member)

	// OnGroupRefresh fires with a group id whose server-side
	// configuration changed; only the id is known at this point.
	OnGroupRefresh func(groupID string)

	// OnRoleChange fires when the authenticated member's role within a
	// group changes.
	OnRoleChange func(groupID string, role chat.Role)

	// OnAffiliationChange fires when the authenticated member's
	// affiliation with a group changes.
	OnAffiliationChange func(groupID string, affiliation chat.Affiliation)
}

// safeEmit runs one handler, converting a panic into a log entry so a
// misbehaving consumer cannot take down stream processing.
func safeEmit(log *logrus.Entry, name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"function": "safeEmit",
				"handler":  name,
				"panic":    r,
			}).Error("Handler panicked")
		}
	}()
	fn()
}
