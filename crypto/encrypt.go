package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/nacl/box"
)

// Nonce is a 24-byte value used for encryption.
type Nonce [24]byte

// Maximum payload size (1MB to prevent excessive memory usage)
const MaxPayloadSize = 1024 * 1024

// nonceSize is the length of the nonce prepended to every envelope.
const nonceSize = 24

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	_, err := rand.Read(nonce[:])
	if err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// Encrypt seals a plaintext payload for a recipient using authenticated
// NaCl box encryption. A fresh nonce is generated per call and prepended to
// the ciphertext before base64 encoding, so encrypting the same payload
// twice never yields the same envelope.
func Encrypt(plaintext []byte, recipientPK [32]byte, senderSK [32]byte) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("empty payload")
	}
	if len(plaintext) > MaxPayloadSize {
		return "", errors.New("payload too large")
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return "", err
	}

	sealed := box.Seal(nonce[:], plaintext, (*[24]byte)(&nonce), (*[32]byte)(&recipientPK), (*[32]byte)(&senderSK))
	return base64.StdEncoding.EncodeToString(sealed), nil
}
