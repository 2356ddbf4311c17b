package security

import "time"

// NewTestTokenProvider returns a TokenProvider with fixed test secrets.
// For unit tests only.
func NewTestTokenProvider(accessTTL, refreshTTL time.Duration) *TokenProvider {
	p, err := NewTokenProvider(
		[]byte("test-access-secret"),
		[]byte("test-refresh-secret"),
		"test-issuer",
		accessTTL,
		refreshTTL,
	)
	if err != nil {
		panic(err)
	}
	return p
}
