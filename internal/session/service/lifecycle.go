package service

import (
	"context"
	"time"

	"identity-sessions/internal/apperr"
	"identity-sessions/internal/audit"
	"identity-sessions/internal/device"
	"identity-sessions/internal/security"
	"identity-sessions/internal/session/domain"
)

// ClientContext carries the request traits a login binds the session to.
type ClientContext struct {
	IP        string
	UserAgent string
}

// Issued is a freshly minted token pair.
type Issued struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Verifier checks credentials and yields the owning user id.
type Verifier interface {
	Verify(ctx context.Context, loginOrEmail, password string) (string, error)
}

// SessionRepo is the slice of the session store the lifecycle service needs.
type SessionRepo interface {
	GetActiveByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error)
	GetLatestByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error)
	GetActiveByDevice(ctx context.Context, deviceID string) (*domain.Session, error)
	Create(ctx context.Context, s domain.Session) error
	RotateToken(ctx context.Context, userID, deviceID, oldHash, newHash string, now, expiresAt time.Time) (bool, error)
	UpdateToken(ctx context.Context, userID, deviceID, newHash string, now, expiresAt time.Time) error
	Revoke(ctx context.Context, userID, deviceID string, at time.Time) error
	RevokeAllExcept(ctx context.Context, userID, currentDeviceID string, at time.Time) error
}

// LifecycleService owns the session state machine: login creates or reuses a
// device session, refresh rotates its token in place, logout and the device
// operations revoke it.
type LifecycleService struct {
	verifier Verifier
	sessions SessionRepo
	tokens   *security.TokenProvider
	audit    audit.Recorder
	now      func() time.Time
}

func NewLifecycleService(verifier Verifier, sessions SessionRepo, tokens *security.TokenProvider, recorder audit.Recorder) *LifecycleService {
	return &LifecycleService{
		verifier: verifier,
		sessions: sessions,
		tokens:   tokens,
		audit:    recorder,
		now:      time.Now,
	}
}

// Login authenticates the credentials and issues a token pair bound to the
// client's device. A repeat login from the same client reuses its existing
// session row, rotating the stored token, instead of piling up duplicates.
func (s *LifecycleService) Login(ctx context.Context, loginOrEmail, password string, client ClientContext) (*Issued, error) {
	userID, err := s.verifier.Verify(ctx, loginOrEmail, password)
	if err != nil {
		s.audit.Record(ctx, audit.ActionLoginFailure, "", "", client.IP, loginOrEmail)
		return nil, err
	}

	title := device.TitleFromUserAgent(client.UserAgent)
	deviceID := device.ID(userID, title, client.UserAgent, client.IP)

	refreshToken, refreshExp, err := s.tokens.IssueRefresh(userID, deviceID)
	if err != nil {
		return nil, err
	}
	accessToken, _, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	hash := security.HashRefreshToken(refreshToken)
	existing, err := s.sessions.GetActiveByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		err = s.sessions.UpdateToken(ctx, userID, deviceID, hash, now, refreshExp)
	} else {
		err = s.sessions.Create(ctx, domain.New(userID, deviceID, hash, client.IP, client.UserAgent, title, now, refreshExp.Sub(now)))
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionLogin, userID, deviceID, client.IP, title)
	return &Issued{AccessToken: accessToken, RefreshToken: refreshToken, RefreshExpiresAt: refreshExp}, nil
}

// Refresh validates the presented refresh token against the stored session
// and rotates the token in place. Validation order is fixed: the session must
// exist, must be neither expired nor revoked, and must still hold the
// presented token. Concurrent refreshes with the same token race through a
// compare-and-swap; losers are rejected as if the token were already spent.
func (s *LifecycleService) Refresh(ctx context.Context, presented string) (*Issued, string, error) {
	userID, deviceID, sess, err := s.resolve(ctx, presented)
	if err != nil {
		return nil, "", err
	}

	newRefresh, refreshExp, err := s.tokens.IssueRefresh(userID, deviceID)
	if err != nil {
		return nil, "", err
	}
	accessToken, _, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, "", err
	}

	ok, err := s.sessions.RotateToken(ctx, userID, deviceID, sess.TokenHash, security.HashRefreshToken(newRefresh), s.now().UTC(), refreshExp)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", apperr.Unauthorized("Session is expired or revoked", "refreshToken")
	}
	return &Issued{AccessToken: accessToken, RefreshToken: newRefresh, RefreshExpiresAt: refreshExp}, userID, nil
}

// Logout revokes the session the presented refresh token belongs to. The
// token has to pass the same checks as a refresh.
func (s *LifecycleService) Logout(ctx context.Context, presented string) error {
	userID, deviceID, _, err := s.resolve(ctx, presented)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, userID, deviceID, s.now().UTC()); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionLogout, userID, deviceID, "", "")
	return nil
}

// RevokeDevice revokes the session on deviceID, provided it belongs to the
// caller. A foreign device is reported but left untouched.
func (s *LifecycleService) RevokeDevice(ctx context.Context, callerUserID, deviceID string) error {
	sess, err := s.sessions.GetActiveByDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if sess == nil {
		return apperr.NotFound("Device not found", "deviceId")
	}
	if sess.UserID != callerUserID {
		return apperr.Forbidden("Device belongs to another user", "deviceId")
	}
	if err := s.sessions.Revoke(ctx, sess.UserID, deviceID, s.now().UTC()); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionRevokeDevice, callerUserID, deviceID, "", "")
	return nil
}

// RevokeOtherDevices revokes every session of the caller except the one the
// presented refresh token rides on. Repeating the call is a no-op.
func (s *LifecycleService) RevokeOtherDevices(ctx context.Context, presented string) error {
	userID, deviceID, _, err := s.resolve(ctx, presented)
	if err != nil {
		return err
	}
	if err := s.sessions.RevokeAllExcept(ctx, userID, deviceID, s.now().UTC()); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionRevokeOthers, userID, deviceID, "", "")
	return nil
}

// Authenticate validates a presented refresh token against its session and
// returns the owning user and device. Device endpoints use it so a revoked
// or rotated-away cookie cannot drive them.
func (s *LifecycleService) Authenticate(ctx context.Context, presented string) (userID, deviceID string, err error) {
	userID, deviceID, _, err = s.resolve(ctx, presented)
	return userID, deviceID, err
}

// resolve runs the shared refresh-token checks and returns the session they
// passed against.
func (s *LifecycleService) resolve(ctx context.Context, presented string) (userID, deviceID string, sess *domain.Session, err error) {
	if presented == "" {
		return "", "", nil, apperr.Unauthorized("Refresh token is missing", "refreshToken")
	}
	userID, deviceID, err = s.tokens.ValidateRefresh(presented)
	if err != nil {
		return "", "", nil, apperr.Unauthorized("Invalid refresh token", "refreshToken")
	}
	sess, err = s.sessions.GetLatestByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		return "", "", nil, err
	}
	if sess == nil {
		return "", "", nil, apperr.Unauthorized("Session not found", "refreshToken")
	}
	if !sess.IsActive(s.now().UTC()) {
		return "", "", nil, apperr.Unauthorized("Session is expired or revoked", "refreshToken")
	}
	if !security.RefreshTokenHashEqual(presented, sess.TokenHash) {
		return "", "", nil, apperr.Unauthorized("Session is expired or revoked", "refreshToken")
	}
	return userID, deviceID, sess, nil
}
