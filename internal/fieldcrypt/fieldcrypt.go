// Package fieldcrypt seals individual sensitive fields of ledger documents
// with AES-256-GCM so the remaining fields stay queryable in storage.
//
// Every ledger has its own random key, exported as standard Base64 and kept
// in the ledger record. A sealed value is Base64(IV || ciphertext || tag)
// with a fresh 12-byte IV per value.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
	// tagSize is the GCM authentication tag length in bytes.
	tagSize = 16
)

// minSealedLen is the Base64 length of the smallest sealed value: IV, tag and
// one byte of ciphertext.
var minSealedLen = base64.StdEncoding.EncodedLen(IVSize + tagSize + 1)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// Errors
var (
	ErrInvalidKey         = errors.New("fieldcrypt: key must be 32 bytes of standard Base64")
	ErrCiphertextTooShort = errors.New("fieldcrypt: ciphertext too short")
	ErrDecrypt            = errors.New("fieldcrypt: decryption failed")
)

// GenerateKey returns a new random 256-bit key encoded as standard Base64.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("fieldcrypt: generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Cipher seals and opens field values with one ledger key.
// A Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a Base64 key produced by GenerateKey.
func NewCipher(key string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string is returned unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	iv := make([]byte, IVSize, IVSize+len(plaintext)+tagSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("fieldcrypt: generating IV: %w", err)
	}
	sealed := c.aead.Seal(iv, iv, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. The empty string is returned
// unchanged.
func (c *Cipher) Decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < IVSize+tagSize {
		return "", ErrCiphertextTooShort
	}
	plain, err := c.aead.Open(nil, raw[:IVSize], raw[IVSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// EncryptDecimal seals the canonical string form of d.
func (c *Cipher) EncryptDecimal(d decimal.Decimal) (string, error) {
	return c.Encrypt(d.String())
}

// DecryptDecimal opens value and parses it as a decimal. Plaintext decimals
// written before encryption was enabled are accepted as-is.
func (c *Cipher) DecryptDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(c.Open(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("fieldcrypt: parsing decimal: %w", err)
	}
	return d, nil
}

// Open returns the plaintext of value. Values that do not look sealed, or
// that fail to open, are returned unchanged so plaintext written before a
// ledger was migrated keeps loading.
func (c *Cipher) Open(value string) string {
	if !IsEncrypted(value) {
		return value
	}
	plain, err := c.Decrypt(value)
	if err != nil {
		return value
	}
	return plain
}

// Sealed reports whether value was sealed with this cipher. Unlike
// IsEncrypted it cannot mistake Base64-looking plaintext for ciphertext.
func (c *Cipher) Sealed(value string) bool {
	if !IsEncrypted(value) {
		return false
	}
	_, err := c.Decrypt(value)
	return err == nil
}

// IsEncrypted reports whether value looks like a sealed field: standard
// Base64 of at least IV, tag and one byte of ciphertext.
func IsEncrypted(value string) bool {
	if len(value) < minSealedLen || len(value)%4 != 0 {
		return false
	}
	return base64Pattern.MatchString(value)
}
