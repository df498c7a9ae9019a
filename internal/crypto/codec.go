// Package crypto holds the at-rest content codec, TOTP helpers and the
// generators for object ids and access tokens.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"secure.vault/internal/models"
)

const (
	keySize = 32 // AES-256
	ivSize  = aes.BlockSize
)

var errBadPadding = errors.New("invalid padding")

// Source tells how a stored blob was turned back into content.
type Source uint8

const (
	// SourceCipher means the blob was decrypted with the codec key.
	SourceCipher Source = iota
	// SourceLegacy means the blob was plaintext JSON written before
	// encryption was enabled.
	SourceLegacy
	// SourceDegraded means the blob could not be decrypted or parsed and
	// Value carries the raw stored string.
	SourceDegraded
)

func (s Source) String() string {
	switch s {
	case SourceCipher:
		return "cipher"
	case SourceLegacy:
		return "legacy"
	default:
		return "degraded"
	}
}

type Plaintext struct {
	Value  models.Content
	Source Source
}

func (p Plaintext) Degraded() bool { return p.Source == SourceDegraded }

// Codec encrypts object content with a static key.
type Codec struct {
	key []byte
}

// NewCodec derives the AES-256 key from secret. Shorter secrets are
// zero-padded and longer ones truncated to 32 bytes.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is required")
	}
	return &Codec{key: deriveKey(secret)}, nil
}

// Encrypt serializes value to JSON and returns iv_hex:ciphertext_hex.
func (c *Codec) Encrypt(value models.Content) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encoding content: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("iv generation failed: %w", err)
	}

	padded := pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt never fails. Blobs without a separator are read as legacy
// plaintext JSON; anything that cannot be decrypted comes back degraded with
// the raw string as its value.
func (c *Codec) Decrypt(blob string) Plaintext {
	ivHex, ctHex, ok := strings.Cut(blob, ":")
	if !ok {
		return legacy(blob)
	}

	plaintext, err := c.open(ivHex, ctHex)
	if err != nil {
		// Legacy JSON strings may themselves contain a colon.
		if v, ok := parseJSON([]byte(blob)); ok {
			return Plaintext{Value: v, Source: SourceLegacy}
		}
		return Plaintext{Value: models.StringContent(blob), Source: SourceDegraded}
	}

	v, ok := parseJSON(plaintext)
	if !ok {
		return Plaintext{Value: models.StringContent(blob), Source: SourceDegraded}
	}
	return Plaintext{Value: v, Source: SourceCipher}
}

func (c *Codec) open(ivHex, ctHex string) ([]byte, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("decoding iv: %w", err)
	}
	if len(iv) != ivSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", ivSize, len(iv))
	}

	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return unpad(plaintext, block.BlockSize())
}

func legacy(blob string) Plaintext {
	if v, ok := parseJSON([]byte(blob)); ok {
		return Plaintext{Value: v, Source: SourceLegacy}
	}
	return Plaintext{Value: models.StringContent(blob), Source: SourceDegraded}
}

// parseJSON accepts any JSON value. Strings and booleans map directly;
// other values keep their JSON text as string content.
func parseJSON(data []byte) (models.Content, bool) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return models.Content{}, false
	}
	var v models.Content
	if err := json.Unmarshal(data, &v); err != nil {
		return models.StringContent(string(data)), true
	}
	return v, true
}

func deriveKey(secret string) []byte {
	key := make([]byte, keySize)
	copy(key, secret)
	return key
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-n], nil
}
