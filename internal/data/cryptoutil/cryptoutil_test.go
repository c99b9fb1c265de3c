package cryptoutil

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAESGCMEncryptor_EncryptDecrypt(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	plaintext := []byte("cafe account password")
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)

	// Versioned prefix, never plaintext on the wire
	assert.Contains(t, ciphertext, "v1:")
	assert.NotContains(t, ciphertext, "password")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESGCMEncryptor_NonceUniqueness(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	first, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)
	second, err := enc.Encrypt([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestAESGCMEncryptor_TamperedCiphertext(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("integrity matters"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext[len("v1:"):])
	require.NoError(t, err)

	// Flip one bit in the ciphertext body; the GCM tag must reject it.
	raw[len(raw)-1] ^= 0x01
	tampered := "v1:" + base64.StdEncoding.EncodeToString(raw)

	_, err = enc.Decrypt(tampered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open ciphertext")
}

func TestAESGCMEncryptor_WrongKey(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	otherKey := testKey()
	otherKey[0] ^= 0xff
	other, err := NewAESGCMEncryptor(otherKey)
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	require.Error(t, err)
}

func TestAESGCMEncryptor_InvalidKey(t *testing.T) {
	_, err := NewAESGCMEncryptor([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")

	_, err = NewAESGCMEncryptor(make([]byte, 64))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")
}

func TestAESGCMEncryptor_InvalidCiphertext(t *testing.T) {
	enc, err := NewAESGCMEncryptor(testKey())
	require.NoError(t, err)

	// Unknown version
	_, err = enc.Decrypt("v2:somedata")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ciphertext version")

	// Plaintext that never went through Encrypt
	_, err = enc.Decrypt("raw password")
	require.Error(t, err)

	// Invalid base64
	_, err = enc.Decrypt("v1:!!!invalid!!!")
	require.Error(t, err)

	// Shorter than a nonce
	_, err = enc.Decrypt("v1:" + base64.StdEncoding.EncodeToString([]byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestNoopEncryptor_RoundTrip(t *testing.T) {
	enc := NoopEncryptor{}

	ciphertext, err := enc.Encrypt([]byte("dev secret"))
	require.NoError(t, err)
	assert.Contains(t, ciphertext, "noop:")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("dev secret"), decrypted)

	_, err = enc.Decrypt("v1:whatever")
	require.Error(t, err)
}
