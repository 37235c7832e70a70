// Package crypto seals connection secrets (MCP server env vars and headers)
// before they are written to the engine database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidKey = errors.New("invalid credentials key: must not be empty")
	// ErrOpenFailed covers corrupt ciphertext, a different key and a mismatched binding.
	ErrOpenFailed = errors.New("failed to open sealed secret: invalid ciphertext or wrong key")
)

const keyInfo = "querygate/connection-secrets/v1"

// SecretBox is AES-256-GCM with a key derived from the configured credentials key.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox accepts a base64-encoded 32-byte key or any passphrase.
// Passphrases are stretched to 32 bytes with HKDF-SHA256.
func NewSecretBox(keyInput string) (*SecretBox, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	key, err := base64.StdEncoding.DecodeString(keyInput)
	if err != nil || len(key) != 32 {
		key = make([]byte, 32)
		if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(keyInput), nil, []byte(keyInfo)), key); err != nil {
			return nil, fmt.Errorf("failed to derive key: %w", err)
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext || tag). binding is authenticated but
// not stored, so the value only opens under the same binding (typically a row id).
func (b *SecretBox) Seal(plaintext, binding []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b.aead.Seal(nonce, nonce, plaintext, binding)), nil
}

// Open reverses Seal.
func (b *SecretBox) Open(sealed string, binding []byte) ([]byte, error) {
	if sealed == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode failed", ErrOpenFailed)
	}
	n := b.aead.NonceSize()
	if len(data) < n+b.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrOpenFailed)
	}

	plaintext, err := b.aead.Open(nil, data[:n], data[n:], binding)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrOpenFailed)
	}
	return plaintext, nil
}

// SealJSON marshals v and seals it. A nil or empty map seals to "".
func (b *SecretBox) SealJSON(v any, binding []byte) (string, error) {
	if m, ok := v.(map[string]string); ok && len(m) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret: %w", err)
	}
	if string(raw) == "null" {
		return "", nil
	}
	return b.Seal(raw, binding)
}

// OpenJSON opens sealed and unmarshals it into dst. An empty value leaves dst untouched.
func (b *SecretBox) OpenJSON(sealed string, binding []byte, dst any) error {
	raw, err := b.Open(sealed, binding)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: payload is not JSON", ErrOpenFailed)
	}
	return nil
}
