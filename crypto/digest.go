package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestHex returns the SHA-256 digest of the input as a lowercase hex
// string. Used for stable auxiliary identifiers, not for confidentiality.
func DigestHex(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}
