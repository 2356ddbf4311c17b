// Package audit records who did what to which session.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actions recorded by the session lifecycle.
const (
	ActionLogin        = "login"
	ActionLoginFailure = "login_failure"
	ActionLogout       = "logout"
	ActionRevokeDevice = "revoke_device"
	ActionRevokeOthers = "revoke_others"
)

// Entry is one audit log row.
type Entry struct {
	ID        string
	UserID    string
	Action    string
	DeviceID  string
	IP        string
	Detail    string
	CreatedAt time.Time
}

// Recorder writes a single audit event. Recording is best-effort: failures
// are logged and never surface to the caller.
type Recorder interface {
	Record(ctx context.Context, action, userID, deviceID, ip, detail string)
}

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
}

// Logger implements Recorder on top of a Repository.
type Logger struct {
	repo Repository
	log  zerolog.Logger
}

func NewLogger(repo Repository, log zerolog.Logger) *Logger {
	return &Logger{repo: repo, log: log}
}

func (l *Logger) Record(ctx context.Context, action, userID, deviceID, ip, detail string) {
	entry := &Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		DeviceID:  deviceID,
		IP:        ip,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}

// Nop discards all events. Used in tests.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string, string, string) {}
