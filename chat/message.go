// Package chat defines the domain model shared by the wire codec, the
// reconciliation store, and the delivery layer: messages, payments, groups,
// members, and group roles.
//
// Entities are identified by their federated id and are merged, never
// duplicated, by the store. A Message is immutable after delivery except for
// its payment block, which is only ever mutated by a later update message
// carrying the same message id.
package chat

import (
	"errors"
	"fmt"
)

// MessageStatus represents the delivery state of a message.
type MessageStatus string

const (
	// MessageSent means the message reached the server.
	MessageSent MessageStatus = "sent"
	// MessageQueued means the send failed and the message will be retried
	// on the next reconnect. Send failures are always treated as retryable.
	MessageQueued MessageStatus = "queued"
	// MessageFailed is reserved for messages that can never be delivered.
	// The direct-send path never produces it.
	MessageFailed MessageStatus = "failed"
)

// MessageKind classifies a message as direct or group chat.
type MessageKind uint8

const (
	KindUnknown MessageKind = iota
	KindDirect
	KindGroup
)

// ErrUnclassifiable is returned when a message names neither a direct
// recipient nor a group, or names both.
var ErrUnclassifiable = errors.New("message is neither direct nor group chat")

// Message is one chat message inside a federation. Exactly one of SentTo
// and SentIn is set: SentTo for direct messages, SentIn for group messages.
type Message struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	SentAt  int64    `json:"sentAt"`
	SentBy  string   `json:"sentBy"`
	SentTo  string   `json:"sentTo,omitempty"`
	SentIn  string   `json:"sentIn,omitempty"`
	Payment *Payment `json:"payment,omitempty"`

	Status MessageStatus `json:"status,omitempty"`
}

// Kind reports whether the message is direct or group chat.
func (m *Message) Kind() MessageKind {
	switch {
	case m.SentIn != "" && m.SentTo == "":
		return KindGroup
	case m.SentIn == "" && m.SentTo != "" && m.SentBy != "":
		return KindDirect
	default:
		return KindUnknown
	}
}

// Validate checks the classification invariant. A message violating it is
// rejected at ingestion rather than stored in an ambiguous state.
func (m *Message) Validate() error {
	if m.ID == "" {
		return errors.New("message id is empty")
	}
	if m.SentIn != "" && m.SentTo != "" {
		return fmt.Errorf("message %s: %w: both sentIn and sentTo set", m.ID, ErrUnclassifiable)
	}
	if m.Kind() == KindUnknown {
		return fmt.Errorf("message %s: %w", m.ID, ErrUnclassifiable)
	}
	return nil
}

// ChatID returns the id of the chat this message belongs to from the
// viewpoint of selfID: the group id for group messages, the counterpart
// member id for direct messages.
func (m *Message) ChatID(selfID string) string {
	if m.SentIn != "" {
		return m.SentIn
	}
	return m.Counterpart(selfID)
}

// Counterpart returns whichever of sender and recipient is not selfID.
func (m *Message) Counterpart(selfID string) string {
	if m.SentBy == selfID {
		return m.SentTo
	}
	return m.SentBy
}
