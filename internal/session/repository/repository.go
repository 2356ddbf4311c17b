package repository

import (
	"context"
	"time"

	"identity-sessions/internal/session/domain"
)

// Repository persists sessions. Lookups that take now only return sessions
// whose lease has not passed; revoked rows are never returned.
type Repository interface {
	// GetActiveByUserAndDevice returns the active session for (userID,
	// deviceID), or nil when none exists.
	GetActiveByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error)

	// GetLatestByUserAndDevice returns the most recent session for (userID,
	// deviceID) including revoked ones, or nil. Refresh uses it so a revoked
	// session is reported as revoked rather than missing.
	GetLatestByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error)

	// GetActiveByDevice returns the active session for deviceID regardless
	// of owner, or nil. Used for ownership checks on device revocation.
	GetActiveByDevice(ctx context.Context, deviceID string) (*domain.Session, error)

	// ListActiveByUser returns the user's unexpired active sessions ordered
	// by last activity, most recent first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)

	// Create persists a new session row.
	Create(ctx context.Context, s domain.Session) error

	// RotateToken atomically replaces the stored token hash, but only if the
	// stored hash still equals oldHash. It reports whether the swap happened;
	// false means another rotation or a revocation won the race.
	RotateToken(ctx context.Context, userID, deviceID, oldHash, newHash string, now, expiresAt time.Time) (bool, error)

	// UpdateToken unconditionally replaces the stored token hash for the
	// active session. Used when a repeat login reissues the device's token.
	UpdateToken(ctx context.Context, userID, deviceID, newHash string, now, expiresAt time.Time) error

	// Revoke marks the active session for (userID, deviceID) revoked.
	Revoke(ctx context.Context, userID, deviceID string, at time.Time) error

	// RevokeAllExcept revokes every active session of the user other than
	// the one on currentDeviceID.
	RevokeAllExcept(ctx context.Context, userID, currentDeviceID string, at time.Time) error

	// DeleteAll physically removes every session row. Maintenance only.
	DeleteAll(ctx context.Context) error
}
