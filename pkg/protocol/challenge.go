package protocol

import (
	"crypto/rand"
	"math/big"
)

const (
	// ChallengeLength is the number of characters of a handshake challenge
	ChallengeLength = 16

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewChallenge returns a fresh random challenge for one connection.
func NewChallenge() (string, error) {
	return RandomString(ChallengeLength)
}

// RandomString returns n characters drawn uniformly from [A-Za-z0-9]
// using the system's secure random source.
func RandomString(n int) (string, error) {
	size := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
