// Package crypto implements the encryption engine for federated chat.
//
// This package handles deterministic keypair derivation from a federation
// seed, authenticated asymmetric encryption of direct-message payloads
// using the NaCl box construction, and auxiliary digests.
//
// Example:
//
//	keys, err := crypto.DeriveKeyPair(seed)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", keys.PublicHex())
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// KeyPair represents a NaCl crypto_box key pair used for direct-message
// encryption within one federation.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// DeriveKeyPair derives a key pair from a federation seed. The seed is
// hashed with SHA-256 and the digest used as the curve25519 scalar, so the
// same seed always yields the same pair. This is load-bearing: keys are
// regenerated from federation credentials on every connect rather than
// persisted.
func DeriveKeyPair(seed string) (*KeyPair, error) {
	if seed == "" {
		return nil, errors.New("empty keypair seed")
	}

	digest := sha256.Sum256([]byte(seed))
	return FromSecretKey(digest)
}

// FromSecretKey creates a key pair from an existing private key.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], public)

	logrus.WithFields(logrus.Fields{
		"function":   "FromSecretKey",
		"public_key": hex.EncodeToString(keyPair.Public[:4]),
	}).Debug("Derived key pair")

	return keyPair, nil
}

// PublicHex returns the public key as a lowercase hex string, the form
// published to and fetched from the server.
func (kp *KeyPair) PublicHex() string {
	return hex.EncodeToString(kp.Public[:])
}

// PublicKeyFromHex decodes a published hex public key.
func PublicKeyFromHex(s string) ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("invalid public key length: %d", len(raw))
	}
	copy(key[:], raw)
	if isZeroKey(key) {
		return key, errors.New("invalid public key: all zeros")
	}
	return key, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
