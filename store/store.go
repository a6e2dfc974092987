package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
)

// TimeProvider abstracts the clock for tests.
type TimeProvider interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store owns the chat state of one federation. All mutations go through
// the upsert-by-id algorithm and replace the whole snapshot, so readers
// holding an old snapshot are never affected and replaying an event is a
// no-op.
type Store struct {
	federation   string
	mu           sync.RWMutex
	state        *State
	messageLimit int
	clock        TimeProvider
}

// New creates a store for a federation. A messageLimit of 0 selects
// DefaultMessageLimit; a negative limit disables bounding.
func New(federationID string, messageLimit int) *Store {
	if messageLimit == 0 {
		messageLimit = DefaultMessageLimit
	}
	return &Store{
		federation:   federationID,
		state:        newState(federationID),
		messageLimit: messageLimit,
		clock:        realClock{},
	}
}

// NewWithClock creates a store with a custom clock, for tests.
func NewWithClock(federationID string, messageLimit int, clock TimeProvider) *Store {
	s := New(federationID, messageLimit)
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Restore replaces the store's snapshot with one loaded from the external
// persistence boundary.
func (s *Store) Restore(state *State) {
	if state == nil {
		return
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Snapshot returns the current state. The returned value is shared and
// must be treated as read-only.
func (s *Store) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UpsertMessage merges a message into the bounded ordered message list.
// Messages that cannot be classified as direct or group chat are rejected.
func (s *Store) UpsertMessage(msg chat.Message) error {
	if err := msg.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "UpsertMessage",
			"federation": s.federationID(),
			"message_id": msg.ID,
		}).WithError(err).Warn("Rejecting unclassifiable message")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	messages, changed := upsertMessages(s.state.Messages, msg, s.messageLimit)
	if !changed {
		return nil
	}
	next := s.state.clone()
	next.Messages = messages
	s.state = next
	return nil
}

// UpsertGroup merges a group by id.
func (s *Store) UpsertGroup(group chat.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, changed := upsertByID(s.state.Groups, group, groupID, mergeGroup)
	if !changed {
		return
	}
	next := s.state.clone()
	next.Groups = groups
	s.state = next
}

// UpsertMember merges a seen member by id.
func (s *Store) UpsertMember(member chat.Member) {
	if member.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	members, changed := upsertByID(s.state.MembersSeen, member, memberID, mergeMember)
	if !changed {
		return
	}
	next := s.state.clone()
	next.MembersSeen = members
	s.state = next
}

// RemoveGroup removes a group and, atomically, all of its dependent state:
// messages sent in it, its role and affiliation entries, and its read
// watermark.
func (s *Store) RemoveGroup(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()

	groups := next.Groups[:0]
	removed := false
	for _, g := range next.Groups {
		if g.ID == id {
			removed = true
			continue
		}
		groups = append(groups, g)
	}
	if !removed {
		return
	}
	next.Groups = groups

	messages := make([]chat.Message, 0, len(next.Messages))
	for _, m := range next.Messages {
		if m.SentIn == id {
			continue
		}
		messages = append(messages, m)
	}
	next.Messages = messages

	delete(next.Roles, id)
	delete(next.Affiliations, id)
	delete(next.LastReadAt, id)

	s.state = next

	logrus.WithFields(logrus.Fields{
		"function":   "RemoveGroup",
		"federation": next.FederationID,
		"group_id":   id,
	}).Info("Removed group and dependent state")
}

// SetStatus records a connection status transition. Leaving the online
// state stamps the last-online time.
func (s *Store) SetStatus(status chat.ConnectionStatus, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == status && s.state.LastError == lastError {
		return
	}
	next := s.state.clone()
	if s.state.Status == chat.ConnectionOnline && status != chat.ConnectionOnline {
		next.LastOnlineAt = s.clock.Now().Unix()
	}
	next.Status = status
	next.LastError = lastError
	s.state = next
}

// SetIdentity records the authenticated member and the derived key pair.
func (s *Store) SetIdentity(me chat.Member, keys *crypto.KeyPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	next.Me = &me
	if keys != nil {
		next.KeyPair = keys
	}
	s.state = next
}

// SetRole records the authenticated member's role within a group.
func (s *Store) SetRole(groupID string, role chat.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Roles[groupID] == role {
		return
	}
	next := s.state.clone()
	next.Roles[groupID] = role
	s.state = next
}

// SetAffiliation records the authenticated member's affiliation with a
// group.
func (s *Store) SetAffiliation(groupID string, affiliation chat.Affiliation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Affiliations[groupID] == affiliation {
		return
	}
	next := s.state.clone()
	next.Affiliations[groupID] = affiliation
	s.state = next
}

// SetLastRead advances a chat's read watermark. It never moves backwards.
func (s *Store) SetLastRead(chatID string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastReadAt[chatID] >= ts {
		return
	}
	next := s.state.clone()
	next.LastReadAt[chatID] = ts
	s.state = next
}

// SetLastSeen advances the global activity watermark.
func (s *Store) SetLastSeen(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastSeenAt >= ts {
		return
	}
	next := s.state.clone()
	next.LastSeenAt = ts
	s.state = next
}

// SetCursor records the archive pagination watermark.
func (s *Store) SetCursor(cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastFetchedMessageID == cursor {
		return
	}
	next := s.state.clone()
	next.LastFetchedMessageID = cursor
	s.state = next
}

// SetPushToken records the device push token pending registration.
func (s *Store) SetPushToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.PushToken == token {
		return
	}
	next := s.state.clone()
	next.PushToken = token
	s.state = next
}

// SetStreamHealthy flags whether the stream has recently proven itself
// alive.
func (s *Store) SetStreamHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.StreamHealthy == healthy {
		return
	}
	next := s.state.clone()
	next.StreamHealthy = healthy
	s.state = next
}

// MemberByID looks up a seen member.
func (s *Store) MemberByID(id string) (chat.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.state.MembersSeen {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Member{}, false
}

// GroupByID looks up a joined group.
func (s *Store) GroupByID(id string) (chat.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.state.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return chat.Group{}, false
}

// MessageByID looks up a stored message.
func (s *Store) MessageByID(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.state.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

// QueuedMessages returns messages awaiting resend, in original send order.
func (s *Store) QueuedMessages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queued := make([]chat.Message, 0)
	for _, m := range s.state.Messages {
		if m.Status == chat.MessageQueued {
			queued = append(queued, m)
		}
	}
	return queued
}

func (s *Store) federationID() string {
	return s.federation
}
