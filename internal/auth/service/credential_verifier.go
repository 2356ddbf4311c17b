package service

import (
	"context"

	"identity-sessions/internal/apperr"
	"identity-sessions/internal/security"
)

// CredentialVerifier checks a login-or-email and password pair. It answers
// only with the user id or a generic unauthorized error; the caller never
// learns whether the account or the password was wrong.
type CredentialVerifier struct {
	users  UserRepo
	hasher *security.Hasher
}

func NewCredentialVerifier(users UserRepo, hasher *security.Hasher) *CredentialVerifier {
	return &CredentialVerifier{users: users, hasher: hasher}
}

// Verify returns the id of the user owning the credentials.
func (v *CredentialVerifier) Verify(ctx context.Context, loginOrEmail, password string) (string, error) {
	if loginOrEmail == "" || password == "" {
		return "", apperr.Unauthorized("Invalid credentials", "loginOrEmail")
	}
	user, err := v.users.GetByLoginOrEmail(ctx, loginOrEmail)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", apperr.Unauthorized("Invalid credentials", "loginOrEmail")
	}
	if err := v.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return "", apperr.Unauthorized("Invalid credentials", "loginOrEmail")
	}
	return user.ID, nil
}
