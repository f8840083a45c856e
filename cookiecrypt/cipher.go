package cookiecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeySize is the decoded key length in bytes.
	KeySize = 32
	// IVSize is the per-call random IV length in bytes.
	IVSize = 16

	delimiter = "."
)

var (
	// ErrInvalidKey is returned when the configured key does not decode to KeySize bytes.
	ErrInvalidKey = errors.New("cipher key must be base64 of exactly 32 bytes")
	// ErrDecryption is returned for corrupted, foreign or wrongly keyed input.
	ErrDecryption = errors.New("decryption failed")
)

// Cipher seals and opens cookie payloads. It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a base64 encoded 32-byte key. Standard and URL
// alphabets are accepted, padded or not.
func New(encodedKey string) (*Cipher, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return NewFromBytes(key)
}

// NewFromBytes builds a Cipher from a raw key.
func NewFromBytes(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh IV.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	return hex.EncodeToString(iv) + delimiter + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(value string) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(value, delimiter)
	if !ok {
		return nil, ErrDecryption
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != IVSize {
		return nil, ErrDecryption
	}
	sealed, err := hex.DecodeString(ctHex)
	if err != nil || len(sealed) < c.aead.Overhead() {
		return nil, ErrDecryption
	}

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// EncryptString is Encrypt for string payloads.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// DecryptString is Decrypt for string payloads.
func (c *Cipher) DecryptString(value string) (string, error) {
	plaintext, err := c.Decrypt(value)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateKey returns a new random key encoded for New.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrInvalidKey
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(encoded)
		if err == nil {
			if len(key) != KeySize {
				return nil, ErrInvalidKey
			}
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}
