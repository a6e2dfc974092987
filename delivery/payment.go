package delivery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/chat"
)

// UpdatePayment applies a payment action to an existing message's payment
// block, executes the ecash side effect, and transmits the mutated
// message as an update-flagged direct message to the counterparty. The
// result is merged locally by id either way; a transmit failure leaves
// the update queued.
func (o *Orchestrator) UpdatePayment(ctx context.Context, messageID string, action chat.PaymentAction) (chat.Message, error) {
	msg, ok := o.store.MessageByID(messageID)
	if !ok {
		return chat.Message{}, fmt.Errorf("%w: %s", chat.ErrUnknownMessage, messageID)
	}
	if msg.Payment == nil {
		return chat.Message{}, fmt.Errorf("%w: %s", chat.ErrNoPayment, messageID)
	}

	state := o.store.Snapshot()
	selfID := state.SelfID()
	if selfID == "" {
		return chat.Message{}, chat.ErrNotConnected
	}
	// The update always goes to whoever is not me.
	counterpart := msg.Counterpart(selfID)

	payment := *msg.Payment
	suppressPush := false

	log := o.log.WithFields(logrus.Fields{
		"function":   "UpdatePayment",
		"message_id": messageID,
		"action":     string(action),
	})

	switch action {
	case chat.PaymentActionReceive:
		// Redeeming is idempotent: a token someone already redeemed is
		// swallowed, not surfaced.
		if err := o.payments.ReceiveEcash(ctx, payment.Token, o.federationID); err != nil {
			if !o.payments.IsAlreadyRedeemed(err) {
				return chat.Message{}, fmt.Errorf("failed to redeem ecash: %w", err)
			}
			log.Debug("Token already redeemed, continuing")
		}
		payment.Token = ""
		payment.Status = chat.PaymentPaid
		suppressPush = true

	case chat.PaymentActionPay:
		token, err := o.payments.GenerateEcash(ctx, payment.Amount, o.federationID)
		if err != nil {
			return chat.Message{}, fmt.Errorf("failed to generate ecash: %w", err)
		}
		payment.Token = token
		payment.Status = chat.PaymentAccepted

	case chat.PaymentActionReject:
		payment.Status = chat.PaymentRejected

	case chat.PaymentActionCancel:
		if err := o.payments.CancelEcash(ctx, payment.Token, o.federationID); err != nil {
			return chat.Message{}, fmt.Errorf("failed to cancel ecash: %w", err)
		}
		payment.Token = ""
		payment.Status = chat.PaymentCanceled
		suppressPush = true

	default:
		return chat.Message{}, fmt.Errorf("%w: payment action %q", chat.ErrUnknown, action)
	}

	payment.UpdatedAt = o.now().Unix()
	msg.Payment = &payment
	msg.Status = chat.MessageSent

	if err := o.transmitDirect(ctx, withRecipient(msg, counterpart), directSendOptions{
		suppressPush:  suppressPush,
		updatePayment: true,
	}); err != nil {
		log.WithError(err).Warn("Payment update send failed, queueing")
		msg.Status = chat.MessageQueued
	}

	if err := o.store.UpsertMessage(msg); err != nil {
		return chat.Message{}, err
	}
	stored, _ := o.store.MessageByID(msg.ID)
	return stored, nil
}

// withRecipient rewrites the message's direct recipient for transmission
// without touching its stored classification.
func withRecipient(msg chat.Message, recipient string) chat.Message {
	out := msg
	out.SentTo = recipient
	out.SentIn = ""
	return out
}
