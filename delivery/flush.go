package delivery

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/chat"
)

// FlushQueued resends queued messages in their original send order.
// Each send resolves keys and identity freshly. A message that fails to
// send stays queued and the flush moves on; a dropped connection aborts
// the whole pass so ordering is preserved for the next reconnect.
func (o *Orchestrator) FlushQueued(ctx context.Context) error {
	queued := o.store.QueuedMessages()
	if len(queued) == 0 {
		return nil
	}

	selfID := o.store.Snapshot().SelfID()

	log := o.log.WithFields(logrus.Fields{
		"function": "FlushQueued",
		"count":    len(queued),
	})
	log.Info("Flushing queued messages")

	for _, msg := range queued {
		if o.session.Status() != chat.ConnectionOnline {
			return chat.ErrNotConnected
		}

		var err error
		switch msg.Kind() {
		case chat.KindGroup:
			err = o.transmitGroup(msg, msg.SentIn)
		default:
			// A queued payment update is resent as an update so the
			// counterparty merges instead of duplicating.
			err = o.transmitDirect(ctx, withRecipient(msg, msg.Counterpart(selfID)), directSendOptions{
				updatePayment: msg.Payment != nil,
			})
		}
		if err != nil {
			log.WithFields(logrus.Fields{
				"message_id": msg.ID,
			}).WithError(err).Warn("Queued send failed, will retry next reconnect")
			continue
		}

		msg.Status = chat.MessageSent
		if upErr := o.store.UpsertMessage(msg); upErr != nil {
			return upErr
		}
	}
	return nil
}
