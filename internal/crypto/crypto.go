// internal/crypto/crypto.go
//
// Package crypto seals secrets stored in the inventory (passwords and key
// passphrases) so they do not sit in plain text next to host addresses.
// Sealed values are encrypted with AES-256-GCM under a key derived from a
// master key with scrypt.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// SealedPrefix marks a value produced by Seal.
	SealedPrefix = "sealed:"

	keySize  = 32 // AES-256
	saltSize = 16

	// scrypt cost parameters.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	// ErrNoMasterKey is returned when a sealed value is met without a key.
	ErrNoMasterKey = errors.New("master key is empty")
	// ErrNotSealed is returned by Open for values without SealedPrefix.
	ErrNotSealed = errors.New("value is not sealed")
)

// Cipher seals and opens secrets with one master key.
type Cipher struct {
	masterKey []byte
}

func NewCipher(masterKey string) (*Cipher, error) {
	if masterKey == "" {
		return nil, ErrNoMasterKey
	}
	return &Cipher{masterKey: []byte(masterKey)}, nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal encrypts plaintext. Every call uses a fresh salt and nonce, so sealing
// the same secret twice gives different output.
func (c *Cipher) Seal(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// salt | nonce | ciphertext
	combined := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	combined = append(combined, salt...)
	combined = append(combined, nonce...)
	combined = aead.Seal(combined, nonce, []byte(plaintext), nil)

	return SealedPrefix + hex.EncodeToString(combined), nil
}

// Open decrypts a value produced by Seal.
func (c *Cipher) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrNotSealed
	}
	combined, err := hex.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	if len(combined) < saltSize {
		return "", errors.New("sealed value too short")
	}

	aead, err := c.aead(combined[:saltSize])
	if err != nil {
		return "", err
	}
	rest := combined[saltSize:]
	if len(rest) < aead.NonceSize() {
		return "", errors.New("sealed value too short")
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt (wrong master key?): %w", err)
	}
	return string(plaintext), nil
}

// Reveal returns value unchanged unless it is sealed, in which case it is
// opened. A nil Cipher can only reveal plain values.
func (c *Cipher) Reveal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if c == nil {
		return "", ErrNoMasterKey
	}
	return c.Open(value)
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.masterKey, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
