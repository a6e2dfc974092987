// Package delivery implements the outbound message paths: direct and
// group sends, payment lifecycle updates, history backfill pagination,
// and the queued-message flush that runs on reconnect.
//
// Failure classification is deliberate: a failed direct or group send is
// marked queued, never failed, and retried on every future reconnect with
// no backoff or attempt cap. Delivery is at-least-once.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/bridge"
	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
	"github.com/opd-ai/fedchat/store"
	"github.com/opd-ai/fedchat/wire"
)

// DefaultPageSize is the archive pagination page size.
const DefaultPageSize = 100

// Sender is the slice of the connection session the orchestrator needs.
type Sender interface {
	Send(el *wire.Element) error
	Request(ctx context.Context, query *wire.Element) (*wire.Element, error)
	Status() chat.ConnectionStatus
	Identity() string
}

// Orchestrator drives every outbound path for one federation.
type Orchestrator struct {
	federationID string
	store        *store.Store
	session      Sender
	payments     bridge.PaymentEngine
	pageSize     int
	log          *logrus.Entry

	now func() time.Time
}

// New creates an orchestrator. A pageSize of 0 selects DefaultPageSize.
func New(federationID string, st *store.Store, session Sender, payments bridge.PaymentEngine, pageSize int) *Orchestrator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Orchestrator{
		federationID: federationID,
		store:        st,
		session:      session,
		payments:     payments,
		pageSize:     pageSize,
		log: logrus.WithFields(logrus.Fields{
			"component":  "delivery",
			"federation": federationID,
		}),
		now: time.Now,
	}
}

// SendDirect sends an encrypted direct message. Any send failure leaves
// the message queued for the next reconnect; it is never marked failed.
// The stored message is returned either way.
func (o *Orchestrator) SendDirect(ctx context.Context, recipientID, content string) (chat.Message, error) {
	state := o.store.Snapshot()
	if state.SelfID() == "" {
		return chat.Message{}, chat.ErrNotConnected
	}

	msg := chat.Message{
		ID:      uuid.NewString(),
		Content: content,
		SentAt:  o.now().Unix(),
		SentBy:  state.SelfID(),
		SentTo:  chat.BareAddress(recipientID),
		Status:  chat.MessageSent,
	}

	if err := o.transmitDirect(ctx, msg, directSendOptions{}); err != nil {
		o.log.WithFields(logrus.Fields{
			"function":   "SendDirect",
			"message_id": msg.ID,
		}).WithError(err).Warn("Send failed, queueing message")
		msg.Status = chat.MessageQueued
	}

	if err := o.store.UpsertMessage(msg); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// SendGroup sends a plaintext group message. Group messages are not end
// to end encrypted. Failures queue the message like the direct path.
func (o *Orchestrator) SendGroup(ctx context.Context, groupID, content string) (chat.Message, error) {
	state := o.store.Snapshot()
	if state.SelfID() == "" {
		return chat.Message{}, chat.ErrNotConnected
	}

	// An unknown group falls back to a bare id stub rather than failing.
	group, ok := o.store.GroupByID(groupID)
	if !ok {
		group = chat.Group{ID: groupID}
	}

	msg := chat.Message{
		ID:      uuid.NewString(),
		Content: content,
		SentAt:  o.now().Unix(),
		SentBy:  state.SelfID(),
		SentIn:  group.ID,
		Status:  chat.MessageSent,
	}

	if err := o.transmitGroup(msg, group.ID); err != nil {
		o.log.WithFields(logrus.Fields{
			"function":   "SendGroup",
			"message_id": msg.ID,
			"group_id":   group.ID,
		}).WithError(err).Warn("Send failed, queueing message")
		msg.Status = chat.MessageQueued
	}

	if err := o.store.UpsertMessage(msg); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

type directSendOptions struct {
	suppressPush  bool
	updatePayment bool
}

// transmitDirect resolves keys freshly and writes one encrypted direct
// message to the stream. State is re-resolved on every call so retries
// pick up key or identity changes.
func (o *Orchestrator) transmitDirect(ctx context.Context, msg chat.Message, opts directSendOptions) error {
	keys := o.store.Snapshot().KeyPair
	if keys == nil {
		return fmt.Errorf("no encryption keys: %w", chat.ErrNotConnected)
	}

	recipientKey, err := o.resolveMemberKey(ctx, msg.SentTo)
	if err != nil {
		return err
	}

	// The wire form never carries the local delivery status.
	wireMsg := msg
	wireMsg.Status = ""
	plaintext, err := json.Marshal(wireMsg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	envelope, err := crypto.Encrypt(plaintext, recipientKey, keys.Private)
	if err != nil {
		return fmt.Errorf("failed to encrypt payload: %w", err)
	}
	// The backup payload is the same plaintext encrypted to the sender,
	// so the sender can decrypt their own archive later.
	backup, err := crypto.Encrypt(plaintext, keys.Public, keys.Private)
	if err != nil {
		return fmt.Errorf("failed to encrypt backup payload: %w", err)
	}

	from := o.session.Identity()
	if from == "" {
		from = msg.SentBy
	}
	el, err := wire.DirectMessage(wire.DirectMessageArgs{
		ID:            msg.ID,
		From:          from,
		To:            msg.SentTo,
		Envelope:      envelope,
		Backup:        backup,
		SuppressPush:  opts.suppressPush,
		UpdatePayment: opts.updatePayment,
	})
	if err != nil {
		return err
	}
	return o.session.Send(el)
}

func (o *Orchestrator) transmitGroup(msg chat.Message, groupID string) error {
	wireMsg := msg
	wireMsg.Status = ""
	payload, err := json.Marshal(wireMsg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	from := o.session.Identity()
	if from == "" {
		from = msg.SentBy
	}
	el, err := wire.GroupMessage(wire.GroupMessageArgs{
		ID:          msg.ID,
		From:        from,
		To:          groupID,
		MessageJSON: payload,
	})
	if err != nil {
		return err
	}
	return o.session.Send(el)
}

// resolveMemberKey returns a member's encryption key, preferring the
// local members-seen cache and falling back to a server fetch whose
// result is cached back into the store.
func (o *Orchestrator) resolveMemberKey(ctx context.Context, memberID string) ([32]byte, error) {
	memberID = chat.BareAddress(memberID)

	if member, ok := o.store.MemberByID(memberID); ok && member.PublicKeyHex != "" {
		return crypto.PublicKeyFromHex(member.PublicKeyHex)
	}

	query, err := wire.FetchKeyQuery(wire.FetchKeyArgs{MemberID: memberID})
	if err != nil {
		return [32]byte{}, err
	}
	resp, err := o.session.Request(ctx, query)
	if err != nil {
		return [32]byte{}, fmt.Errorf("key fetch for %s failed: %w", memberID, err)
	}

	keyEl := resp.Find("pubkey")
	if keyEl == nil || keyEl.Text == "" {
		return [32]byte{}, fmt.Errorf("%w: %s has no published key", chat.ErrUnknownMember, memberID)
	}
	key, err := crypto.PublicKeyFromHex(keyEl.Text)
	if err != nil {
		return [32]byte{}, err
	}

	o.store.UpsertMember(chat.Member{
		ID:           memberID,
		Username:     chat.LocalPart(memberID),
		PublicKeyHex: keyEl.Text,
	})
	return key, nil
}
