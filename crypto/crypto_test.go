package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDeriveKeyPairDeterministic(t *testing.T) {
	first, err := DeriveKeyPair("federation-seed-1")
	if err != nil {
		t.Fatalf("DeriveKeyPair() error: %v", err)
	}
	second, err := DeriveKeyPair("federation-seed-1")
	if err != nil {
		t.Fatalf("DeriveKeyPair() error: %v", err)
	}

	if !bytes.Equal(first.Public[:], second.Public[:]) {
		t.Error("same seed produced different public keys")
	}
	if !bytes.Equal(first.Private[:], second.Private[:]) {
		t.Error("same seed produced different private keys")
	}

	other, err := DeriveKeyPair("federation-seed-2")
	if err != nil {
		t.Fatalf("DeriveKeyPair() error: %v", err)
	}
	if bytes.Equal(first.Public[:], other.Public[:]) {
		t.Error("different seeds produced identical public keys")
	}
}

func TestDeriveKeyPairEmptySeed(t *testing.T) {
	if _, err := DeriveKeyPair(""); err == nil {
		t.Fatal("DeriveKeyPair(\"\") expected error but got nil")
	}
}

func TestFromSecretKeyZero(t *testing.T) {
	if _, err := FromSecretKey([32]byte{}); err == nil {
		t.Fatal("FromSecretKey() expected error for zero key")
	}
}

func TestPublicKeyFromHex(t *testing.T) {
	keys, err := DeriveKeyPair("seed")
	if err != nil {
		t.Fatalf("DeriveKeyPair() error: %v", err)
	}

	decoded, err := PublicKeyFromHex(keys.PublicHex())
	if err != nil {
		t.Fatalf("PublicKeyFromHex() error: %v", err)
	}
	if !bytes.Equal(decoded[:], keys.Public[:]) {
		t.Error("hex round trip changed the key")
	}

	cases := []struct {
		name string
		in   string
	}{
		{"Not hex", "zz"},
		{"Wrong length", "abcd"},
		{"All zeros", strings.Repeat("00", 32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PublicKeyFromHex(tc.in); err == nil {
				t.Errorf("PublicKeyFromHex(%q) expected error", tc.in)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, _ := DeriveKeyPair("alice")
	bob, _ := DeriveKeyPair("bob")

	envelope, err := Encrypt([]byte("hi"), bob.Public, alice.Private)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	plaintext, err := Decrypt(envelope, alice.Public, bob.Private)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if string(plaintext) != "hi" {
		t.Errorf("Decrypt() = %q, want %q", plaintext, "hi")
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	alice, _ := DeriveKeyPair("alice")
	bob, _ := DeriveKeyPair("bob")

	first, err := Encrypt([]byte("same payload"), bob.Public, alice.Private)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	second, err := Encrypt([]byte("same payload"), bob.Public, alice.Private)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	if first == second {
		t.Error("two encryptions of identical input produced identical envelopes")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	alice, _ := DeriveKeyPair("alice")
	bob, _ := DeriveKeyPair("bob")
	eve, _ := DeriveKeyPair("eve")

	envelope, err := Encrypt([]byte("secret"), bob.Public, alice.Private)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	if _, err := Decrypt(envelope, alice.Public, eve.Private); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt() with wrong key = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	alice, _ := DeriveKeyPair("alice")
	bob, _ := DeriveKeyPair("bob")

	cases := []struct {
		name     string
		envelope string
	}{
		{"Not base64", "!!!not-base64!!!"},
		{"Too short", "YWJj"},
		{"Empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decrypt(tc.envelope, alice.Public, bob.Private); err == nil {
				t.Error("Decrypt() expected error for malformed envelope")
			}
		})
	}
}

func TestEncryptEmptyPayload(t *testing.T) {
	alice, _ := DeriveKeyPair("alice")
	bob, _ := DeriveKeyPair("bob")

	if _, err := Encrypt(nil, bob.Public, alice.Private); err == nil {
		t.Fatal("Encrypt() expected error for empty payload")
	}
}

func TestDigestHex(t *testing.T) {
	first := DigestHex("hello")
	second := DigestHex("hello")
	if first != second {
		t.Error("DigestHex() is not stable")
	}
	if len(first) != 64 {
		t.Errorf("DigestHex() length = %d, want 64", len(first))
	}
	if DigestHex("other") == first {
		t.Error("DigestHex() collided on different inputs")
	}
}
