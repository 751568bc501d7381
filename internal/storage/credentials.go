package storage

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrNoCredentialKey is returned when a sealed credential must be opened but no key is configured.
var ErrNoCredentialKey = errors.New("no credential key configured")

// CredentialBox seals and opens connection passwords with a shared secret key.
// Sealed values are base64(nonce || secretbox).
type CredentialBox struct {
	key *[keySize]byte
}

// NewCredentialBox decodes a base64 key of exactly 32 bytes.
// An empty key yields a box that can only open empty credentials.
func NewCredentialBox(encodedKey string) (*CredentialBox, error) {
	if encodedKey == "" {
		return &CredentialBox{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("credential key must be %d bytes, got %d", keySize, len(raw))
	}

	var key [keySize]byte
	copy(key[:], raw)
	return &CredentialBox{key: &key}, nil
}

// GenerateKey returns a new random base64 key suitable for CREDENTIAL_KEY.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Seal encrypts a plain credential.
func (b *CredentialBox) Seal(plain string) (string, error) {
	if b.key == nil {
		return "", ErrNoCredentialKey
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed credential. An empty input opens to an empty password.
func (b *CredentialBox) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if b.key == nil {
		return "", ErrNoCredentialKey
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", errors.New("credential too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, b.key)
	if !ok {
		return "", errors.New("credential authentication failed")
	}
	return string(plain), nil
}
