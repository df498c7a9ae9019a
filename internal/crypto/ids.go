package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"time"
)

const (
	idSuffixLength = 6
	tokenLength    = 32
)

// GenerateID returns a time-ordered object id: the base36 creation
// timestamp followed by a random suffix. Uniqueness is probabilistic.
func GenerateID(now time.Time) string {
	bytes := make([]byte, idSuffixLength)
	if _, err := rand.Read(bytes); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + base64.RawURLEncoding.EncodeToString(bytes)
}

// GenerateToken returns the bearer credential for a new object.
func GenerateToken() string {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
