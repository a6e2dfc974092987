package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// ErrDecryptionFailed is returned when an envelope cannot be opened, most
// commonly because it was encrypted to a different key pair. Authentication
// failure is always an explicit error, never silent corruption.
var ErrDecryptionFailed = errors.New("decryption failed: message authentication failed")

// Decrypt opens a base64 envelope produced by Encrypt: the leading 24 bytes
// are the nonce, the remainder the authenticated ciphertext.
func Decrypt(envelope string, senderPK [32]byte, recipientSK [32]byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope encoding: %w", err)
	}
	if len(raw) <= nonceSize {
		return nil, errors.New("envelope too short")
	}

	var nonce Nonce
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := box.Open(nil, raw[nonceSize:], (*[24]byte)(&nonce), (*[32]byte)(&senderPK), (*[32]byte)(&recipientSK))
	if !ok {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
