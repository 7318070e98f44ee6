package helpers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// NewID returns a 16-character hex identifier from crypto/rand. These ids are
// the primary keys for users and role-membership rows.
func NewID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewToken returns an opaque URL-safe token of n random bytes, used for email
// verification and password reset links. The store treats it as a single-use
// exact-match string.
func NewToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
