package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Sign returns the base64 encoded HMAC-SHA256 of payload keyed by token.
func Sign(payload, token string) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the signature of payload under token.
// The comparison runs in constant time.
func Verify(payload, token, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, token)), []byte(signature))
}
