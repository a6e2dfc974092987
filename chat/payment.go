package chat

// PaymentStatus represents the lifecycle state of an in-chat payment.
type PaymentStatus string

const (
	// PaymentAccepted means the sender has attached ecash to the message.
	PaymentAccepted PaymentStatus = "accepted"
	// PaymentRejected means the recipient declined the payment.
	PaymentRejected PaymentStatus = "rejected"
	// PaymentPaid means the recipient redeemed the attached ecash.
	PaymentPaid PaymentStatus = "paid"
	// PaymentCanceled means the sender reclaimed the attached ecash.
	PaymentCanceled PaymentStatus = "canceled"
)

// Payment is the payment block embedded in a message. It is the only part
// of a message mutated after creation, and only through a new protocol
// message flagged as a payment update, merged into the original by id.
type Payment struct {
	Amount    uint64        `json:"amount"`
	Token     string        `json:"token,omitempty"`
	Recipient string        `json:"recipient"`
	Status    PaymentStatus `json:"status"`
	UpdatedAt int64         `json:"updatedAt"`
}

// PaymentAction is a user-initiated transition on a payment.
type PaymentAction string

const (
	// PaymentActionReceive redeems the attached ecash token.
	PaymentActionReceive PaymentAction = "receive"
	// PaymentActionPay mints a token for a requested payment.
	PaymentActionPay PaymentAction = "pay"
	// PaymentActionReject declines a payment without touching the token.
	PaymentActionReject PaymentAction = "reject"
	// PaymentActionCancel reclaims a previously attached token.
	PaymentActionCancel PaymentAction = "cancel"
)
