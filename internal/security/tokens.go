package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret is returned by NewTokenProvider for an empty signing secret.
	// This is a fatal configuration error and must be surfaced at startup.
	ErrMissingSecret = errors.New("signing secret is not configured")
)

// AccessClaims holds JWT claims for the access token. Subject is the user id.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// RefreshClaims holds JWT claims for the refresh token. Subject is the user id;
// DeviceID binds the token to one security device.
type RefreshClaims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"deviceId"`
}

// TokenProvider issues and validates JWT tokens using two independent HS256
// signing contexts: a short-lived stateless access context and a long-lived
// refresh context whose tokens are additionally bound to a device.
type TokenProvider struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenProvider returns a TokenProvider with separate secrets and TTLs for
// the access and refresh contexts. Empty secrets are rejected so a
// misconfigured deployment fails at startup, not on the first login.
func NewTokenProvider(accessSecret, refreshSecret []byte, issuer string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, ErrMissingSecret
	}
	return &TokenProvider{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// RefreshTTL returns the refresh token lifetime. The session expiry and the
// cookie Max-Age are derived from it.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for the given user.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(userID string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.accessSecret)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT bound to the given device.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueRefresh(userID, deviceID string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.refreshTTL)
	// The jti makes every issued token unique even within the same second,
	// so rotation always produces a distinct replacement.
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		DeviceID: deviceID,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.refreshSecret)
	return token, expiresAt, err
}

// ValidateAccess parses and validates an access token (signature, exp, iss).
// Returns the user id.
func (p *TokenProvider) ValidateAccess(tokenString string) (userID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, p.keyFunc(p.accessSecret))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Issuer != p.issuer || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// ValidateRefresh parses and validates a refresh token (signature, exp, iss).
// Returns the user id and the device id the token is bound to.
func (p *TokenProvider) ValidateRefresh(tokenString string) (userID, deviceID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, p.keyFunc(p.refreshSecret))
	if err != nil {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid || claims.Issuer != p.issuer || claims.Subject == "" || claims.DeviceID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.DeviceID, nil
}

func (p *TokenProvider) keyFunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}
}
