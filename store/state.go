// Package store implements the per-federation chat reconciliation store.
//
// The store folds server-delivered entities (messages, groups, members,
// roles) into bounded, ordered, deduplicated collections keyed by id, and
// exposes derived views over them. Every mutation produces a new state
// snapshot; the previous snapshot is never modified in place. Applying an
// entity that changes nothing returns the identical snapshot pointer, so
// downstream consumers can short-circuit on pointer equality.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
)

// DefaultMessageLimit caps how many messages are retained locally per
// federation. Once at the cap, the oldest messages are evicted first.
const DefaultMessageLimit = 1000

// State is one immutable snapshot of a federation's chat state.
type State struct {
	FederationID string                `json:"federationId"`
	Status       chat.ConnectionStatus `json:"status"`
	LastOnlineAt int64                 `json:"lastOnlineAt,omitempty"`
	LastError    string                `json:"lastError,omitempty"`

	// Me is the authenticated member, corrected against the negotiated
	// stream identity after each connect.
	Me *chat.Member `json:"me,omitempty"`

	// KeyPair is held in memory only; it is re-derived from federation
	// credentials on connect and never serialized.
	KeyPair *crypto.KeyPair `json:"-"`

	// Messages is ordered ascending by sentAt and bounded by the
	// configured retention limit.
	Messages    []chat.Message `json:"messages"`
	Groups      []chat.Group   `json:"groups"`
	MembersSeen []chat.Member  `json:"membersSeen"`

	// Roles and Affiliations are keyed by group id and always removed
	// together with their group.
	Roles        map[string]chat.Role        `json:"roles"`
	Affiliations map[string]chat.Affiliation `json:"affiliations"`

	// LastReadAt is the per-chat read watermark, keyed by chat id.
	LastReadAt map[string]int64 `json:"lastReadAt"`

	// LastFetchedMessageID is the archive pagination cursor.
	LastFetchedMessageID string `json:"lastFetchedMessageId,omitempty"`

	// LastSeenAt is the global activity watermark for cross-chat badges.
	LastSeenAt int64 `json:"lastSeenAt,omitempty"`

	PushToken     string `json:"pushToken,omitempty"`
	StreamHealthy bool   `json:"streamHealthy"`
}

func newState(federationID string) *State {
	return &State{
		FederationID: federationID,
		Status:       chat.ConnectionOffline,
		Roles:        make(map[string]chat.Role),
		Affiliations: make(map[string]chat.Affiliation),
		LastReadAt:   make(map[string]int64),
	}
}

// clone makes a shallow structural copy: slices and maps are copied,
// entity values are shared (they are treated as immutable).
func (s *State) clone() *State {
	next := *s

	next.Messages = append([]chat.Message(nil), s.Messages...)
	next.Groups = append([]chat.Group(nil), s.Groups...)
	next.MembersSeen = append([]chat.Member(nil), s.MembersSeen...)

	next.Roles = make(map[string]chat.Role, len(s.Roles))
	for k, v := range s.Roles {
		next.Roles[k] = v
	}
	next.Affiliations = make(map[string]chat.Affiliation, len(s.Affiliations))
	for k, v := range s.Affiliations {
		next.Affiliations[k] = v
	}
	next.LastReadAt = make(map[string]int64, len(s.LastReadAt))
	for k, v := range s.LastReadAt {
		next.LastReadAt[k] = v
	}

	return &next
}

// SelfID returns the authenticated member's id, or "".
func (s *State) SelfID() string {
	if s.Me == nil {
		return ""
	}
	return s.Me.ID
}

// Serialize encodes the snapshot for the external persistence boundary.
// The key pair is deliberately excluded.
func (s *State) Serialize() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	return data, nil
}

// LoadState decodes a snapshot previously produced by Serialize.
func LoadState(data []byte) (*State, error) {
	state := newState("")
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if state.Roles == nil {
		state.Roles = make(map[string]chat.Role)
	}
	if state.Affiliations == nil {
		state.Affiliations = make(map[string]chat.Affiliation)
	}
	if state.LastReadAt == nil {
		state.LastReadAt = make(map[string]int64)
	}
	// Connection state is transient and never resumes from a snapshot.
	state.Status = chat.ConnectionOffline
	state.StreamHealthy = false
	return state, nil
}
