package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// NewPortalToken returns an unguessable client portal token (256 bits).
// Knowing the token is the only credential the portal requires.
func NewPortalToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// FeedKey derives the calendar feed key for a tenant.
func FeedKey(secret, tenantID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte("calendar-feed:" + tenantID))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyFeedKey(secret, tenantID, key string) bool {
	if secret == "" || key == "" {
		return false
	}
	return hmac.Equal([]byte(FeedKey(secret, tenantID)), []byte(key))
}
