package fieldcrypt

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, KeySize)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, 16))
	for _, key := range []string{"", "not base64!", short} {
		_, err := NewCipher(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	c := newTestCipher(t)

	for _, plain := range []string{"a", "Groceries at the market", "한국어 메모", strings.Repeat("x", 4096)} {
		sealed, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, sealed)
		assert.True(t, IsEncrypted(sealed), "sealed value must satisfy the heuristic")

		raw, err := base64.StdEncoding.DecodeString(sealed)
		require.NoError(t, err)
		assert.Len(t, raw, IVSize+len(plain)+tagSize)

		got, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c := newTestCipher(t)
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmptyValuesPassThrough(t *testing.T) {
	c := newTestCipher(t)
	sealed, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed)

	plain, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestDecryptErrors(t *testing.T) {
	c := newTestCipher(t)
	other := newTestCipher(t)

	sealed, err := other.Encrypt("secret")
	require.NoError(t, err)
	_, err = c.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecrypt, "wrong key must not open")

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("tiny")))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = c.Decrypt("%%%")
	assert.True(t, errors.Is(err, ErrDecrypt))

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = other.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecrypt, "tampered tag must fail")
}

func TestIsEncrypted(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"12500", false},
		{"Lunch with friends", false},
		{"QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNkZWZn", true},
		{"QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNkZWZ", false}, // length not a multiple of 4
		{"QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVph YmNkZWZn", false},
		{"QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNkZT==", true},
		{"QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNk===", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsEncrypted(tt.value), tt.value)
	}
}

func TestSealed(t *testing.T) {
	c := newTestCipher(t)
	sealed, err := c.Encrypt("rent")
	require.NoError(t, err)

	assert.True(t, c.Sealed(sealed))
	assert.False(t, c.Sealed("rent"))
	assert.False(t, c.Sealed("AcctRef0123456789ABCDEFGHIJKLMNOPQRSTUVW"), "plaintext in the Base64 alphabet")
	assert.False(t, newTestCipher(t).Sealed(sealed), "sealed under another key")
}

func TestOpenMixedValues(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Encrypt("memo")
	require.NoError(t, err)
	assert.Equal(t, "memo", c.Open(sealed))
	assert.Equal(t, "plain memo", c.Open("plain memo"))

	// Looks sealed but is not ours: returned unchanged.
	lookalike := "QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVphYmNkZWZn"
	assert.Equal(t, lookalike, c.Open(lookalike))
}

func TestDecimalRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	amount := decimal.RequireFromString("-1234.5600")

	sealed, err := c.EncryptDecimal(amount)
	require.NoError(t, err)
	got, err := c.DecryptDecimal(sealed)
	require.NoError(t, err)
	assert.True(t, amount.Equal(got))

	plain, err := c.DecryptDecimal("42.5")
	require.NoError(t, err)
	assert.Equal(t, "42.5", plain.String())

	zero, err := c.DecryptDecimal("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = c.DecryptDecimal("twelve")
	assert.Error(t, err)
}

func TestKeyCache(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	cache := NewKeyCache()
	loads := 0
	load := func() (string, error) {
		loads++
		return key, nil
	}

	c1, err := cache.Get("ledger-1", load)
	require.NoError(t, err)
	c2, err := cache.Get("ledger-1", load)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, cache.Len())

	cache.Forget("ledger-1")
	assert.Equal(t, 0, cache.Len())
	_, err = cache.Get("ledger-1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)

	boom := errors.New("boom")
	_, err = cache.Get("ledger-2", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, cache.Len(), "failed loads are not cached")

	_, err = cache.Put("ledger-3", "bad")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyCacheConcurrent(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	cache := NewKeyCache()

	var wg sync.WaitGroup
	results := make([]*Cipher, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := cache.Get("shared", func() (string, error) { return key, nil })
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range results[1:] {
		assert.Same(t, results[0], c)
	}
}
