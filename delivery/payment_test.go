package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/wire"
)

var errAlreadyRedeemed = errors.New("token already redeemed")

// fakePayments records ecash calls and returns scripted results.
type fakePayments struct {
	mintToken  string
	mintErr    error
	receiveErr error
	cancelErr  error

	minted   []uint64
	received []string
	canceled []string
}

func (f *fakePayments) GenerateEcash(_ context.Context, amount uint64, _ string) (string, error) {
	f.minted = append(f.minted, amount)
	return f.mintToken, f.mintErr
}

func (f *fakePayments) ReceiveEcash(_ context.Context, token, _ string) error {
	f.received = append(f.received, token)
	return f.receiveErr
}

func (f *fakePayments) CancelEcash(_ context.Context, token, _ string) error {
	f.canceled = append(f.canceled, token)
	return f.cancelErr
}

func (f *fakePayments) IsAlreadyRedeemed(err error) bool {
	return errors.Is(err, errAlreadyRedeemed)
}

// seedPaymentMessage stores an incoming payment message from the peer.
func seedPaymentMessage(t *testing.T, o *Orchestrator, payment chat.Payment) chat.Message {
	t.Helper()
	msg := chat.Message{
		ID:      "pay-1",
		Content: "here you go",
		SentAt:  100,
		SentBy:  testPeer,
		SentTo:  testSelf,
		Status:  chat.MessageSent,
		Payment: &payment,
	}
	require.NoError(t, o.store.UpsertMessage(msg))
	return msg
}

func TestUpdatePaymentReceive(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)
	payments := &fakePayments{}
	o.payments = payments

	seedPaymentMessage(t, o, chat.Payment{
		Amount: 42, Token: "tok-1", Recipient: testSelf, Status: chat.PaymentAccepted,
	})

	msg, err := o.UpdatePayment(context.Background(), "pay-1", chat.PaymentActionReceive)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1"}, payments.received)
	require.NotNil(t, msg.Payment)
	assert.Equal(t, chat.PaymentPaid, msg.Payment.Status)
	assert.Empty(t, msg.Payment.Token)

	stored, ok := st.MessageByID("pay-1")
	require.True(t, ok)
	assert.Equal(t, chat.PaymentPaid, stored.Payment.Status)

	// The update travels to the counterparty, push-suppressed.
	require.Len(t, sender.sent, 1)
	stanza := sender.sent[0]
	assert.Equal(t, testPeer, stanza.Attr("to"))
	assert.Equal(t, "true", stanza.ChildText("body"))
	assert.NotNil(t, stanza.Child("update-payment"))
}

func TestUpdatePaymentReceiveAlreadyRedeemed(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	payments := &fakePayments{receiveErr: errAlreadyRedeemed}
	o.payments = payments

	seedPaymentMessage(t, o, chat.Payment{
		Amount: 42, Token: "tok-1", Recipient: testSelf, Status: chat.PaymentAccepted,
	})

	msg, err := o.UpdatePayment(context.Background(), "pay-1", chat.PaymentActionReceive)
	require.NoError(t, err)
	assert.Equal(t, chat.PaymentPaid, msg.Payment.Status)
}

func TestUpdatePaymentReceiveEngineFailure(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	o.payments = &fakePayments{receiveErr: errors.New("federation offline")}

	seedPaymentMessage(t, o, chat.Payment{
		Amount: 42, Token: "tok-1", Recipient: testSelf, Status: chat.PaymentAccepted,
	})

	_, err := o.UpdatePayment(context.Background(), "pay-1", chat.PaymentActionReceive)
	require.Error(t, err)

	// The stored payment is untouched.
	stored, _ := st.MessageByID("pay-1")
	assert.Equal(t, chat.PaymentAccepted, stored.Payment.Status)
	assert.Equal(t, "tok-1", stored.Payment.Token)
}

func TestUpdatePaymentPay(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)
	payments := &fakePayments{mintToken: "tok-minted"}
	o.payments = payments

	// A payment request arrives with no token attached.
	seedPaymentMessage(t, o, chat.Payment{
		Amount: 42, Recipient: testPeer, Status: chat.PaymentRejected,
	})

	msg, err := o.UpdatePayment(context.Background(), "pay-1", chat.PaymentActionPay)
	require.NoError(t, err)
	assert.Equal(t, []uint64{42}, payments.minted)
	assert.Equal(t, "tok-minted", msg.Payment.Token)
	assert.Equal(t, chat.PaymentAccepted, msg.Payment.Status)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "false", sender.sent[0].ChildText("body"))
}

func TestUpdatePaymentReject(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	payments := &fakePayments{}
	o.payments = payments

	seedPaymentMessage(t, o, chat.Payment{
		Amount: 42, Token: "tok-1", Recipient: testSelf, Status: chat.PaymentAccepted,
	})

	msg, err := o.UpdatePayment(context.Background(), "pay-1", chat.PaymentActionReject)
	require.NoError(t, err)
	assert.Equal(t, chat.PaymentRejected, msg.Payment.Status)
	// Rejecting leaves the token with the sender.
	assert.Equal(t, "tok-1", msg.Payment.Token)
	assert.Empty(t, payments.received)
	assert.Empty(t, payments.canceled)
}

func TestUpdatePaymentCancel(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)
	payments := &fakePayments{}
	o.payments = payments

	seedPaymentMessage(t, o, chat.Payment{
		Amount: 42, Token: "tok-1", Recipient: testSelf, Status: chat.PaymentAccepted,
	})

	msg, err := o.UpdatePayment(context.Background(), "pay-1", chat.PaymentActionCancel)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1"}, payments.canceled)
	assert.Equal(t, chat.PaymentCanceled, msg.Payment.Status)
	assert.Empty(t, msg.Payment.Token)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "true", sender.sent[0].ChildText("body"))
}

func TestUpdatePaymentSendFailureQueues(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)
	o.payments = &fakePayments{}
	sender.sendErr = func(*wire.Element) error { return errors.New("stream closed") }

	seedPaymentMessage(t, o, chat.Payment{
		Amount: 42, Token: "tok-1", Recipient: testSelf, Status: chat.PaymentAccepted,
	})

	msg, err := o.UpdatePayment(context.Background(), "pay-1", chat.PaymentActionReject)
	require.NoError(t, err)
	assert.Equal(t, chat.MessageQueued, msg.Status)
	// The local payment state advanced even though the update is queued.
	assert.Equal(t, chat.PaymentRejected, msg.Payment.Status)

	stored, _ := st.MessageByID("pay-1")
	assert.Equal(t, chat.MessageQueued, stored.Status)
}

func TestUpdatePaymentPreconditions(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.payments = &fakePayments{}

	_, err := o.UpdatePayment(context.Background(), "missing", chat.PaymentActionReceive)
	assert.ErrorIs(t, err, chat.ErrUnknownMessage)

	require.NoError(t, o.store.UpsertMessage(chat.Message{
		ID: "plain", Content: "no payment", SentAt: 1,
		SentBy: testPeer, SentTo: testSelf, Status: chat.MessageSent,
	}))
	_, err = o.UpdatePayment(context.Background(), "plain", chat.PaymentActionReceive)
	assert.ErrorIs(t, err, chat.ErrNoPayment)
}
