package store

import (
	"sort"

	"github.com/opd-ai/fedchat/chat"
)

// ChatEntry is one row of the derived ordered chat list: a direct
// conversation or a group, its latest activity, and its unread state.
type ChatEntry struct {
	// ID is the counterpart member id for direct chats, the group id for
	// group chats.
	ID   string
	Kind chat.MessageKind

	// LatestMessage is the newest message in the chat, nil for a joined
	// group with no messages yet.
	LatestMessage *chat.Message

	// LatestPaymentUpdate is the payment-bearing message with the newest
	// payment update, tracked independently of LatestMessage.
	LatestPaymentUpdate *chat.Message

	// Unread is true if either the latest message or the latest payment
	// update is newer than the chat's read watermark.
	Unread bool

	// MemberIDs accumulates every participant observed in the chat's
	// messages.
	MemberIDs []string

	sortKey int64
}

// ChatList folds all messages, newest first, into one entry per chat and
// returns the entries ordered by most recent activity. Groups without
// messages are included and sorted by their join time.
func (s *Store) ChatList() []ChatEntry {
	state := s.Snapshot()
	selfID := state.SelfID()

	entries := make(map[string]*ChatEntry)
	order := make([]string, 0)

	// Messages are stored ascending; walk them newest first so the first
	// message per chat is its latest.
	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		key := msg.ChatID(selfID)
		if key == "" {
			continue
		}

		entry, seen := entries[key]
		if !seen {
			latest := msg
			entry = &ChatEntry{
				ID:            key,
				Kind:          msg.Kind(),
				LatestMessage: &latest,
				sortKey:       msg.SentAt,
			}
			entries[key] = entry
			order = append(order, key)
		}

		if msg.Payment != nil {
			current := entry.LatestPaymentUpdate
			if current == nil || msg.Payment.UpdatedAt > current.Payment.UpdatedAt {
				paying := msg
				entry.LatestPaymentUpdate = &paying
			}
		}

		entry.addMember(msg.SentBy)
		entry.addMember(msg.SentTo)
	}

	// Joined groups appear even before their first message, keyed on
	// their join time.
	for _, g := range state.Groups {
		if _, seen := entries[g.ID]; seen {
			continue
		}
		entries[g.ID] = &ChatEntry{
			ID:      g.ID,
			Kind:    chat.KindGroup,
			sortKey: g.JoinedAt,
		}
		order = append(order, g.ID)
	}

	list := make([]ChatEntry, 0, len(order))
	for _, key := range order {
		entry := entries[key]
		entry.Unread = entryUnread(entry, state.LastReadAt[key])
		list = append(list, *entry)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].sortKey > list[j].sortKey
	})
	return list
}

// entryUnread composes the two independent unread signals: an unseen
// message and an unseen payment-status update.
func entryUnread(entry *ChatEntry, lastRead int64) bool {
	messageUnread := entry.LatestMessage != nil && lastRead < entry.LatestMessage.SentAt
	paymentUnread := entry.LatestPaymentUpdate != nil &&
		entry.LatestPaymentUpdate.Payment != nil &&
		lastRead < entry.LatestPaymentUpdate.Payment.UpdatedAt
	return messageUnread || paymentUnread
}

// HasUnseenActivity reports whether anything happened since the global
// last-seen watermark, for cross-chat badges.
func (s *Store) HasUnseenActivity() bool {
	state := s.Snapshot()
	for _, m := range state.Messages {
		if m.SentAt > state.LastSeenAt {
			return true
		}
		if m.Payment != nil && m.Payment.UpdatedAt > state.LastSeenAt {
			return true
		}
	}
	return false
}

func (e *ChatEntry) addMember(id string) {
	if id == "" {
		return
	}
	for _, existing := range e.MemberIDs {
		if existing == id {
			return
		}
	}
	e.MemberIDs = append(e.MemberIDs, id)
}
