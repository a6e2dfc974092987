package wire

import (
	"errors"

	"github.com/opd-ai/fedchat/chat"
)

// GroupPresenceArgs are the inputs for presence sent to a group.
type GroupPresenceArgs struct {
	// GroupID is the room's bare address.
	GroupID string
	// SenderID is the sending member's address; its localpart becomes
	// the room nickname.
	SenderID string
}

// GroupPresence builds the presence that enters (or re-enters) a group.
// The destination is the room address resource-qualified with the
// sender's localpart.
func GroupPresence(args GroupPresenceArgs) (*Element, error) {
	el, err := groupPresence(args)
	if err != nil {
		return nil, err
	}
	el.AddChild(New("x", map[string]string{"xmlns": NSMUC}))
	return el, nil
}

// LeavePresence builds the unavailable presence that exits a group.
func LeavePresence(args GroupPresenceArgs) (*Element, error) {
	el, err := groupPresence(args)
	if err != nil {
		return nil, err
	}
	el.SetAttr("type", "unavailable")
	return el, nil
}

func groupPresence(args GroupPresenceArgs) (*Element, error) {
	if args.GroupID == "" || args.SenderID == "" {
		return nil, errors.New("group presence requires group and sender")
	}
	return New("presence", map[string]string{
		"id": CorrelationID("group-presence"),
		"to": args.GroupID + "/" + chat.LocalPart(args.SenderID),
	}), nil
}

// ProbePresence builds the liveness probe sent when the stream is
// suspected dead. Any stanza observed after it proves the stream alive.
func ProbePresence() *Element {
	return New("presence", map[string]string{
		"id": CorrelationID("probe"),
	})
}

// InitialPresence builds the presence announcing the client online after
// connecting.
func InitialPresence() *Element {
	return New("presence", map[string]string{
		"id": CorrelationID("initial-presence"),
	})
}
