package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashRefreshToken returns a SHA-256 hash of the refresh token string,
// hex-encoded. Sessions store this hash as the authoritative copy of the
// current token; the raw token never reaches the database.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenHashEqual compares the hash of the presented token with the
// stored hash in constant time. A false result means the presented token is
// not the session's current one, e.g. a stale token after rotation.
func RefreshTokenHashEqual(presentedToken, storedHash string) bool {
	presentedHash := HashRefreshToken(presentedToken)
	return subtle.ConstantTimeCompare([]byte(presentedHash), []byte(storedHash)) == 1
}
