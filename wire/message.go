package wire

import (
	"errors"
	"fmt"
	"strconv"
)

// DirectMessageArgs are the inputs for building an encrypted direct
// message stanza.
type DirectMessageArgs struct {
	// ID is the application-level message id, not a correlation id.
	ID   string
	From string
	To   string
	// Envelope is the base64 payload encrypted to the recipient.
	Envelope string
	// Backup is the same payload encrypted to the sender's own public
	// key, so the sender can decrypt their own archived messages.
	Backup string
	// SuppressPush is signaled through the placeholder body text; the
	// body otherwise exists only so the server's archive indexes the
	// stanza.
	SuppressPush bool
	// UpdatePayment marks the message as an update to an existing
	// payment rather than a new chat message.
	UpdatePayment bool
}

// DirectMessage builds an encrypted direct message stanza.
func DirectMessage(args DirectMessageArgs) (*Element, error) {
	if args.ID == "" || args.From == "" || args.To == "" {
		return nil, errors.New("direct message requires id, from, and to")
	}
	if args.Envelope == "" || args.Backup == "" {
		return nil, fmt.Errorf("direct message %s requires both encrypted payloads", args.ID)
	}

	msg := New("message", map[string]string{
		"id":   args.ID,
		"from": args.From,
		"to":   args.To,
		"type": "chat",
	})

	encrypted := New("encrypted", map[string]string{"xmlns": NSEncrypted})
	encrypted.AddChild(New("payload", nil).SetText(args.Envelope))
	msg.AddChild(encrypted)

	backup := New("backup", map[string]string{"xmlns": NSEncrypted})
	backup.AddChild(New("payload", nil).SetText(args.Backup))
	msg.AddChild(backup)

	msg.AddChild(New("body", nil).SetText(strconv.FormatBool(args.SuppressPush)))

	if args.UpdatePayment {
		msg.AddChild(New("update-payment", nil))
	}

	return msg, nil
}

// GroupMessageArgs are the inputs for building a group chat message
// stanza. Group messages are not end-to-end encrypted.
type GroupMessageArgs struct {
	// ID is the application-level message id.
	ID   string
	From string
	// To is the group id.
	To string
	// MessageJSON is the serialized message object. It travels both in
	// the human-readable body, for archiving, and in a structured
	// element carrying the full object.
	MessageJSON []byte
}

// GroupMessage builds a group chat message stanza.
func GroupMessage(args GroupMessageArgs) (*Element, error) {
	if args.ID == "" || args.From == "" || args.To == "" {
		return nil, errors.New("group message requires id, from, and to")
	}
	if len(args.MessageJSON) == 0 {
		return nil, fmt.Errorf("group message %s requires a message body", args.ID)
	}

	msg := New("message", map[string]string{
		"id":   args.ID,
		"from": args.From,
		"to":   args.To,
		"type": "groupchat",
	})

	msg.AddChild(New("body", nil).SetText(string(args.MessageJSON)))
	msg.AddChild(New("data", map[string]string{"xmlns": NSJSON}).SetText(string(args.MessageJSON)))

	return msg, nil
}
