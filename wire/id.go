package wire

import (
	"strings"

	"github.com/google/uuid"
)

// CorrelationID stamps a fresh request id of the form
// "<operation>-<random-suffix>" used to match async responses.
func CorrelationID(operation string) string {
	return operation + "-" + uuid.NewString()
}

// KeyNode returns the pubsub node a member publishes their public key to.
func KeyNode(username string) string {
	return username + ":pubkey"
}

// ValidKeyNode reports whether a key-publish node id corresponds to the
// claimed publisher. The node id must include the publisher's username;
// this string match is the only verification performed, no signature is
// checked.
func ValidKeyNode(node, username string) bool {
	return username != "" && strings.Contains(node, username)
}
