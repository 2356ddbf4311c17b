package service

import (
	"context"
	"time"

	"identity-sessions/internal/session/domain"
)

// SessionReader is the slice of the session store the directory needs.
type SessionReader interface {
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)
}

// DeviceView is one row of a user's device list.
type DeviceView struct {
	DeviceID     string
	Title        string
	IP           string
	UserAgent    string
	LastActiveAt time.Time
}

// Directory lists the devices holding active sessions for a user.
type Directory struct {
	sessions SessionReader
	now      func() time.Time
}

func NewDirectory(sessions SessionReader) *Directory {
	return &Directory{sessions: sessions, now: time.Now}
}

// ListActiveDevices returns the user's active devices, most recently
// active first. Expired and revoked sessions are excluded.
func (d *Directory) ListActiveDevices(ctx context.Context, userID string) ([]DeviceView, error) {
	sessions, err := d.sessions.ListActiveByUser(ctx, userID, d.now())
	if err != nil {
		return nil, err
	}
	views := make([]DeviceView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, DeviceView{
			DeviceID:     s.DeviceID,
			Title:        s.Title,
			IP:           s.IP,
			UserAgent:    s.UserAgent,
			LastActiveAt: s.LastActiveAt,
		})
	}
	return views, nil
}
