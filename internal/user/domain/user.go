package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OneTimeCode is a single-use code with an expiry, used for email confirmation
// and password recovery.
type OneTimeCode struct {
	Code      string
	ExpiresAt time.Time
	Confirmed bool
}

// Valid reports whether the code can still be consumed: not yet used and not expired.
func (c *OneTimeCode) Valid(now time.Time) bool {
	if c == nil {
		return false
	}
	return !c.Confirmed && now.Before(c.ExpiresAt)
}

// User is the identity record. It is never physically deleted in normal
// operation; MarkDeleted sets a tombstone and all repository lookups filter it.
// Mutations go through the explicit transition methods below.
type User struct {
	ID                string
	Login             string
	Email             string
	PasswordHash      string
	IsEmailConfirmed  bool
	CreatedAt         time.Time
	DeletedAt         *time.Time
	EmailConfirmation *OneTimeCode
	PasswordRecovery  *OneTimeCode
}

// NewUser returns an unconfirmed user with the given credentials.
func NewUser(login, email, passwordHash string, now time.Time) *User {
	return &User{
		ID:           uuid.New().String(),
		Login:        login,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
}

// Validate validates the user for persistence. Returns an error describing the
// first validation failure.
func (u *User) Validate() error {
	if u.Login == "" {
		return errors.New("login is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// IsDeleted reports whether the user carries a soft-delete tombstone.
func (u *User) IsDeleted() bool { return u.DeletedAt != nil }

// MarkDeleted sets the soft-delete tombstone. There is no undelete path.
func (u *User) MarkDeleted(now time.Time) {
	if u.DeletedAt == nil {
		t := now
		u.DeletedAt = &t
	}
}

// ResetEmailConfirmation replaces the pending email confirmation with a fresh
// code expiring after ttl.
func (u *User) ResetEmailConfirmation(now time.Time, ttl time.Duration) {
	u.EmailConfirmation = &OneTimeCode{
		Code:      uuid.New().String(),
		ExpiresAt: now.Add(ttl),
	}
}

// ConfirmEmail consumes the pending confirmation code and marks the email confirmed.
// The caller checks code validity first.
func (u *User) ConfirmEmail() {
	u.IsEmailConfirmed = true
	if u.EmailConfirmation != nil {
		u.EmailConfirmation.Confirmed = true
	}
}

// ResetPasswordRecovery replaces the pending password recovery with a fresh
// code expiring after ttl.
func (u *User) ResetPasswordRecovery(now time.Time, ttl time.Duration) {
	u.PasswordRecovery = &OneTimeCode{
		Code:      uuid.New().String(),
		ExpiresAt: now.Add(ttl),
	}
}

// SetPassword replaces the password hash and consumes the pending recovery code.
func (u *User) SetPassword(passwordHash string) {
	u.PasswordHash = passwordHash
	if u.PasswordRecovery != nil {
		u.PasswordRecovery.Confirmed = true
	}
}
