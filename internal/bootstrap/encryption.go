package bootstrap

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cafeworks/postbot/internal/data/cryptoutil"
)

// CreateEncryptor builds the AES-GCM credential codec from the configured
// key: 64 hex characters or 32 raw bytes. Stored secrets are unreadable under
// any other key, so a missing or odd-sized key fails startup instead of
// silently degrading.
func CreateEncryptor(key string) (*cryptoutil.AESGCMEncryptor, error) {
	if key == "" {
		return nil, errors.New("SECRETS_ENCRYPTION_KEY is required")
	}

	var keyBytes []byte
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == cryptoutil.KeySize {
		keyBytes = decoded
	} else if len(key) == cryptoutil.KeySize {
		keyBytes = []byte(key)
	} else {
		return nil, fmt.Errorf("encryption key must be %d raw bytes or %d hex characters", cryptoutil.KeySize, cryptoutil.KeySize*2)
	}

	return cryptoutil.NewAESGCMEncryptor(keyBytes)
}
