package chat

import "errors"

// The fixed error vocabulary surfaced by caller-facing operations.
// External layers branch on these instead of raw transport errors.
var (
	// ErrNotConnected means the operation needs an online session.
	ErrNotConnected = errors.New("not connected")
	// ErrNotGroupOwner means an owner-only group operation was
	// attempted without the owner affiliation.
	ErrNotGroupOwner = errors.New("not the group owner")
	// ErrUnknownGroup means the group is not present in local state.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrUnknownMember means the member is not present in local state
	// and could not be resolved from the server.
	ErrUnknownMember = errors.New("unknown member")
	// ErrUnknownMessage means no message with that id is stored.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrNoPayment means a payment action targeted a message without a
	// payment block.
	ErrNoPayment = errors.New("message carries no payment")
	// ErrBackfillFailed means history backfill failed twice in a row.
	ErrBackfillFailed = errors.New("history backfill failed")
	// ErrUnknown is the generic fallback.
	ErrUnknown = errors.New("unknown chat error")
)
