package chat

// Member is a federation participant observed on the stream. Members are
// recorded the first time any stanza names them (roster entries, presence,
// message senders, key publishes) and merged by id after that.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	// PublicKeyHex is filled in lazily, from a fetched or pushed key
	// publish whose node id matches the member's username. It is never
	// blanked by a later observation that lacks a key.
	PublicKeyHex string `json:"publicKeyHex,omitempty"`
}

// Group is a multi-user chat room the authenticated member has joined.
type Group struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	JoinedAt      int64  `json:"joinedAt"`
	BroadcastOnly bool   `json:"broadcastOnly"`
}
