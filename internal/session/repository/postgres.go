package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"identity-sessions/internal/session/domain"
)

const sessionColumns = `device_id, user_id, token_hash, ip, user_agent, title,
	created_at, last_active_at, expires_at, revoked_at`

// PostgresRepository implements Repository backed by Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetActiveByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL`, userID, deviceID)
}

func (r *PostgresRepository) GetLatestByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND device_id = $2
		ORDER BY created_at DESC LIMIT 1`, userID, deviceID)
}

func (r *PostgresRepository) GetActiveByDevice(ctx context.Context, deviceID string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE device_id = $1 AND revoked_at IS NULL`, deviceID)
}

func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY last_active_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)`,
		s.DeviceID, s.UserID, s.TokenHash, s.IP, s.UserAgent, s.Title,
		s.CreatedAt, s.LastActiveAt, s.ExpiresAt,
	)
	return err
}

// RotateToken is a compare-and-swap on token_hash. Concurrent refreshes with
// the same presented token race through this update; at most one sees the
// old hash still in place and wins.
func (r *PostgresRepository) RotateToken(ctx context.Context, userID, deviceID, oldHash, newHash string, now, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions
		SET token_hash = $4, last_active_at = $5, expires_at = $6
		WHERE user_id = $1 AND device_id = $2 AND token_hash = $3 AND revoked_at IS NULL`,
		userID, deviceID, oldHash, newHash, now, expiresAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) UpdateToken(ctx context.Context, userID, deviceID, newHash string, now, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions
		SET token_hash = $3, last_active_at = $4, expires_at = $5
		WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL`,
		userID, deviceID, newHash, now, expiresAt,
	)
	return err
}

func (r *PostgresRepository) Revoke(ctx context.Context, userID, deviceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked_at = $3
		WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL`,
		userID, deviceID, at,
	)
	return err
}

func (r *PostgresRepository) RevokeAllExcept(ctx context.Context, userID, currentDeviceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked_at = $3
		WHERE user_id = $1 AND device_id <> $2 AND revoked_at IS NULL`,
		userID, currentDeviceID, at,
	)
	return err
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions`)
	return err
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s       domain.Session
		revoked sql.NullTime
	)
	err := row.Scan(
		&s.DeviceID, &s.UserID, &s.TokenHash, &s.IP, &s.UserAgent, &s.Title,
		&s.CreatedAt, &s.LastActiveAt, &s.ExpiresAt, &revoked,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if revoked.Valid {
		s.RevokedAt = &revoked.Time
	}
	return s, nil
}
