package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// Environment constants
const (
	EnvTest = "test"
	EnvLive = "live"
)

const (
	apiKeyPrefix = "fg"
	apiKeyLength = 32
	base62Chars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// fingerprintBytes of the key hash identify a key in logs.
	fingerprintBytes = 8
)

var validEnvironments = map[string]bool{
	EnvTest: true,
	EnvLive: true,
}

// GenerateAPIKey creates a new API key and its fingerprint.
// Format: fg_<env>_<random32>
func GenerateAPIKey(env string) (string, string, error) {
	if !validEnvironments[env] {
		return "", "", errors.New("invalid environment: must be 'test' or 'live'")
	}

	randomPart, err := generateSecureRandomString(apiKeyLength)
	if err != nil {
		return "", "", err
	}

	plainKey := apiKeyPrefix + "_" + env + "_" + randomPart
	return plainKey, APIKeyFingerprint(plainKey), nil
}

// HashAPIKey returns the SHA256 of key.
func HashAPIKey(key string) [sha256.Size]byte {
	return sha256.Sum256([]byte(key))
}

// APIKeyFingerprint identifies key in logs without revealing it.
func APIKeyFingerprint(key string) string {
	hash := HashAPIKey(key)
	return hex.EncodeToString(hash[:fingerprintBytes])
}

// IsValidFormat reports whether key looks like a generated key.
// Expected format: fg_<env>_<random32>
func IsValidFormat(key string) bool {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return false
	}

	if parts[0] != apiKeyPrefix {
		return false
	}

	if !validEnvironments[parts[1]] {
		return false
	}

	randomPart := parts[2]
	if len(randomPart) != apiKeyLength {
		return false
	}

	for _, char := range randomPart {
		if !strings.ContainsRune(base62Chars, char) {
			return false
		}
	}

	return true
}

func generateSecureRandomString(length int) (string, error) {
	result := make([]byte, length)
	base62Len := big.NewInt(int64(len(base62Chars)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", err
		}
		result[i] = base62Chars[num.Int64()]
	}

	return string(result), nil
}
