package store

import (
	"reflect"
	"sort"

	"github.com/opd-ai/fedchat/chat"
)

// upsertByID merges an entity into a collection keyed by id. If an entry
// with the same id exists it is replaced by merge(old, incoming); if the
// merged result equals the old entry the original slice is returned
// untouched and changed is false. Unmatched entities are appended.
func upsertByID[T any](list []T, entity T, id func(T) string, merge func(old, incoming T) T) (out []T, changed bool) {
	key := id(entity)
	for i, existing := range list {
		if id(existing) != key {
			continue
		}
		merged := merge(existing, entity)
		if reflect.DeepEqual(merged, existing) {
			return list, false
		}
		next := append([]T(nil), list...)
		next[i] = merged
		return next, true
	}
	return append(append([]T(nil), list...), entity), true
}

// upsertMessages applies the message-specific policy on top of upsertByID:
// the collection is re-sorted ascending by sentAt after every change, then
// truncated from the front once over the limit, keeping the newest
// entries. Truncation is only safe after the ascending sort.
func upsertMessages(list []chat.Message, msg chat.Message, limit int) ([]chat.Message, bool) {
	next, changed := upsertByID(list, msg, messageID, mergeMessage)
	if !changed {
		return list, false
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].SentAt < next[j].SentAt
	})
	if limit > 0 && len(next) > limit {
		next = next[len(next)-limit:]
	}
	return next, true
}

func messageID(m chat.Message) string { return m.ID }
func groupID(g chat.Group) string     { return g.ID }
func memberID(m chat.Member) string   { return m.ID }

// mergeMessage overlays the incoming message on the stored one. The
// incoming entity wins, except a missing payment block or status never
// erases one already known (archive redeliveries omit both).
func mergeMessage(old, incoming chat.Message) chat.Message {
	merged := incoming
	if merged.Payment == nil {
		merged.Payment = old.Payment
	}
	if merged.Status == "" {
		merged.Status = old.Status
	}
	return merged
}

// mergeMember fills member fields in lazily; an observation without a key
// or username never blanks one learned earlier.
func mergeMember(old, incoming chat.Member) chat.Member {
	merged := incoming
	if merged.Username == "" {
		merged.Username = old.Username
	}
	if merged.PublicKeyHex == "" {
		merged.PublicKeyHex = old.PublicKeyHex
	}
	return merged
}

// mergeGroup keeps the original join time and last known name across
// config refreshes that omit them.
func mergeGroup(old, incoming chat.Group) chat.Group {
	merged := incoming
	if merged.JoinedAt == 0 {
		merged.JoinedAt = old.JoinedAt
	}
	if merged.Name == "" {
		merged.Name = old.Name
	}
	return merged
}
