package session

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
	"github.com/opd-ai/fedchat/wire"
)

// dispatch routes one inbound stanza to the typed handlers. Malformed or
// foreign stanzas are dropped with a log entry; they never surface as
// errors to the caller.
func (s *Session) dispatch(el *wire.Element) {
	switch el.Name {
	case "message":
		s.dispatchMessage(el)
	case "presence":
		s.dispatchPresence(el)
	case "iq":
		s.dispatchIQ(el)
	}
}

func (s *Session) dispatchMessage(el *wire.Element) {
	switch {
	// A room signaling a configuration change: only the id is known.
	case s.isGroupConfigChange(el):
		groupID := chat.BareAddress(el.Attr("from"))
		if h := s.cfg.Handlers.OnGroupRefresh; h != nil {
			safeEmit(s.log, "OnGroupRefresh", func() { h(groupID) })
		}

	case el.Attr("type") == "groupchat":
		s.dispatchGroupMessage(el)

	case el.ChildNS("encrypted", wire.NSEncrypted) != nil:
		s.dispatchDirectMessage(el)

	case el.Attr("type") == "headline":
		s.dispatchKeyPublish(el)

	case el.ChildNS("result", wire.NSArchive) != nil:
		s.dispatchArchiveResult(el)
	}
}

func (s *Session) isGroupConfigChange(el *wire.Element) bool {
	if el.Attr("type") != "groupchat" {
		return false
	}
	x := el.ChildNS("x", wire.NSMUCUser)
	if x == nil {
		return false
	}
	for _, child := range x.Children {
		if child.Name == "status" && child.Attr("code") == wire.StatusRoomConfigChanged {
			return true
		}
	}
	return false
}

func (s *Session) dispatchGroupMessage(el *wire.Element) {
	payload := ""
	if data := el.ChildNS("data", wire.NSJSON); data != nil {
		payload = data.Text
	} else {
		payload = el.ChildText("body")
	}
	if payload == "" {
		return
	}

	var msg chat.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "dispatchGroupMessage",
			"from":     el.Attr("from"),
		}).WithError(err).Warn("Dropping undecodable group message")
		return
	}
	if msg.SentIn == "" {
		msg.SentIn = chat.BareAddress(el.Attr("from"))
	}
	s.emitMessage(msg)
}

func (s *Session) dispatchDirectMessage(el *wire.Element) {
	plaintext, ok := s.decryptDirect(el)
	if !ok {
		return
	}

	var msg chat.Message
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "dispatchDirectMessage",
			"from":     el.Attr("from"),
		}).WithError(err).Warn("Dropping message without decodable content")
		return
	}
	s.emitMessage(msg)
}

// decryptDirect opens a direct message's envelope. Self-sent messages are
// opened through the backup payload, since the primary was encrypted to
// the recipient.
func (s *Session) decryptDirect(el *wire.Element) ([]byte, bool) {
	log := s.log.WithFields(logrus.Fields{
		"function": "decryptDirect",
		"from":     el.Attr("from"),
	})

	if s.cfg.Keys == nil {
		log.Warn("Dropping encrypted message: no local keys")
		return nil, false
	}

	sender := chat.BareAddress(el.Attr("from"))
	selfSent := sender == chat.BareAddress(s.transport.Identity())

	var envelope string
	var senderKey [32]byte
	if selfSent {
		backup := el.ChildNS("backup", wire.NSEncrypted)
		if backup == nil {
			log.Warn("Dropping self-sent message without backup payload")
			return nil, false
		}
		envelope = backup.ChildText("payload")
		senderKey = s.cfg.Keys.Public
	} else {
		encrypted := el.ChildNS("encrypted", wire.NSEncrypted)
		envelope = encrypted.ChildText("payload")

		keyHex, found := "", false
		if s.cfg.ResolveKey != nil {
			keyHex, found = s.cfg.ResolveKey(sender)
		}
		if !found {
			log.Warn("Dropping encrypted message: sender key unknown")
			return nil, false
		}
		decoded, err := crypto.PublicKeyFromHex(keyHex)
		if err != nil {
			log.WithError(err).Warn("Dropping encrypted message: bad sender key")
			return nil, false
		}
		senderKey = decoded
	}

	if envelope == "" {
		log.Warn("Dropping encrypted message: empty payload")
		return nil, false
	}

	plaintext, err := crypto.Decrypt(envelope, senderKey, s.cfg.Keys.Private)
	if err != nil {
		log.WithError(err).Warn("Dropping undecryptable message")
		return nil, false
	}
	return plaintext, true
}

// dispatchKeyPublish handles a pushed public-key-subscription event. The
// publisher node must correspond to the publisher's username; no
// signature is verified beyond that string match.
func (s *Session) dispatchKeyPublish(el *wire.Element) {
	event := el.ChildNS("event", wire.NSPubsubEvent)
	if event == nil {
		return
	}
	items := event.Child("items")
	if items == nil {
		return
	}

	sender := chat.BareAddress(el.Attr("from"))
	username := chat.LocalPart(sender)
	node := items.Attr("node")

	keyEl := items.Find("pubkey")
	if keyEl == nil || keyEl.Text == "" {
		return
	}

	if !wire.ValidKeyNode(node, username) {
		s.log.WithFields(logrus.Fields{
			"function": "dispatchKeyPublish",
			"from":     sender,
			"node":     node,
		}).Warn("Dropping key publish with mismatched node")
		return
	}

	if h := s.cfg.Handlers.OnMemberSeen; h != nil {
		member := chat.Member{ID: sender, Username: username, PublicKeyHex: keyEl.Text}
		safeEmit(s.log, "OnMemberSeen", func() { h(member) })
	}
}

// dispatchArchiveResult unwraps one history-backfill delivery and feeds
// the forwarded original through the normal message path.
func (s *Session) dispatchArchiveResult(el *wire.Element) {
	result := el.ChildNS("result", wire.NSArchive)
	forwarded := result.ChildNS("forwarded", wire.NSForward)
	if forwarded == nil {
		return
	}
	inner := forwarded.Child("message")
	if inner == nil {
		return
	}
	// Entries the server flags as errors are skipped, not surfaced.
	if inner.Child("error") != nil {
		s.log.WithFields(logrus.Fields{
			"function":   "dispatchArchiveResult",
			"archive_id": result.Attr("id"),
		}).Debug("Skipping archived entry marked as error")
		return
	}
	s.dispatchMessage(inner)
}

func (s *Session) dispatchPresence(el *wire.Element) {
	x := el.ChildNS("x", wire.NSMUCUser)
	if x == nil {
		return
	}
	item := x.Child("item")
	if item == nil {
		return
	}

	// Only the authenticated member's own standing matters here.
	self := chat.BareAddress(s.transport.Identity())
	concernsSelf := false
	if jid := item.Attr("jid"); jid != "" {
		concernsSelf = chat.BareAddress(jid) == self
	} else {
		concernsSelf = chat.Resource(el.Attr("from")) == chat.LocalPart(self)
	}
	if !concernsSelf {
		return
	}

	groupID := chat.BareAddress(el.Attr("from"))
	if role := item.Attr("role"); role != "" {
		if h := s.cfg.Handlers.OnRoleChange; h != nil {
			parsed := chat.ParseRole(role)
			safeEmit(s.log, "OnRoleChange", func() { h(groupID, parsed) })
		}
	}
	if affiliation := item.Attr("affiliation"); affiliation != "" {
		if h := s.cfg.Handlers.OnAffiliationChange; h != nil {
			parsed := chat.ParseAffiliation(affiliation)
			safeEmit(s.log, "OnAffiliationChange", func() { h(groupID, parsed) })
		}
	}
}

func (s *Session) dispatchIQ(el *wire.Element) {
	query := el.ChildNS("query", wire.NSRoster)
	if query == nil {
		return
	}

	h := s.cfg.Handlers.OnMemberSeen
	if h == nil {
		return
	}
	for _, item := range query.Children {
		if item.Name != "item" {
			continue
		}
		jid := chat.BareAddress(item.Attr("jid"))
		if jid == "" {
			continue
		}
		member := chat.Member{ID: jid, Username: chat.LocalPart(jid)}
		safeEmit(s.log, "OnMemberSeen", func() { h(member) })
	}
}

func (s *Session) emitMessage(msg chat.Message) {
	if msg.Status == "" {
		msg.Status = chat.MessageSent
	}
	if err := msg.Validate(); err != nil {
		s.log.WithFields(logrus.Fields{
			"function":   "emitMessage",
			"message_id": msg.ID,
		}).WithError(err).Warn("Dropping unclassifiable message")
		return
	}

	if h := s.cfg.Handlers.OnMessage; h != nil {
		safeEmit(s.log, "OnMessage", func() { h(msg) })
	}
	if h := s.cfg.Handlers.OnMemberSeen; h != nil && msg.SentBy != "" {
		member := chat.Member{ID: msg.SentBy, Username: chat.LocalPart(msg.SentBy)}
		safeEmit(s.log, "OnMemberSeen", func() { h(member) })
	}
}
