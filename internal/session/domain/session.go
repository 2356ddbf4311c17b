package domain

import "time"

// Session is one device's refresh-token lease for a user. The stored token
// hash identifies the single currently valid refresh token for the session;
// rotation replaces it in place.
type Session struct {
	DeviceID     string
	UserID       string
	TokenHash    string // SHA-256 hash of the current refresh token
	IP           string
	UserAgent    string
	Title        string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time // nil when not revoked
}

// New returns a fresh active session for the given user and device.
func New(userID, deviceID, tokenHash, ip, userAgent, title string, now time.Time, ttl time.Duration) Session {
	return Session{
		DeviceID:     deviceID,
		UserID:       userID,
		TokenHash:    tokenHash,
		IP:           ip,
		UserAgent:    userAgent,
		Title:        title,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
	}
}

// IsRevoked reports whether the session has been explicitly revoked.
// Revocation is terminal.
func (s Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpired reports whether the session's lease has passed at now.
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsActive reports whether the session can still be refreshed at now.
func (s Session) IsActive(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}

// Rotated returns a copy carrying the replacement token hash with the
// activity timestamp and lease pushed forward.
func (s Session) Rotated(tokenHash string, now time.Time, ttl time.Duration) Session {
	s.TokenHash = tokenHash
	s.LastActiveAt = now
	s.ExpiresAt = now.Add(ttl)
	return s
}

// Revoked returns a copy marked revoked at the given time.
func (s Session) Revoked(at time.Time) Session {
	s.RevokedAt = &at
	return s
}
