package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"identity-sessions/internal/user/domain"
)

const userColumns = `id, login, email, password_hash, is_email_confirmed,
	confirmation_code, confirmation_expires_at, confirmation_confirmed,
	recovery_code, recovery_expires_at, recovery_confirmed,
	created_at, deleted_at`

// PostgresRepository implements Repository backed by Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found or soft-deleted.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetByLoginOrEmail returns the non-deleted user whose login or email equals
// loginOrEmail, or nil if none matches.
func (r *PostgresRepository) GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users
		WHERE (login = $1 OR email = $1) AND deleted_at IS NULL`, loginOrEmail)
}

// GetByEmail returns the non-deleted user with the given email, or nil.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
}

// GetByConfirmationCode returns the non-deleted user holding the given pending
// email confirmation code, or nil.
func (r *PostgresRepository) GetByConfirmationCode(ctx context.Context, code string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users
		WHERE confirmation_code = $1 AND deleted_at IS NULL`, code)
}

// GetByRecoveryCode returns the non-deleted user holding the given pending
// password recovery code, or nil.
func (r *PostgresRepository) GetByRecoveryCode(ctx context.Context, code string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users
		WHERE recovery_code = $1 AND deleted_at IS NULL`, code)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	cc, cexp, cdone := codeColumns(u.EmailConfirmation)
	rc, rexp, rdone := codeColumns(u.PasswordRecovery)
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.ID, u.Login, u.Email, u.PasswordHash, u.IsEmailConfirmed,
		cc, cexp, cdone, rc, rexp, rdone,
		u.CreatedAt, timeToNullTime(u.DeletedAt),
	)
	return err
}

// Save updates every mutable field of the user identified by u.ID.
func (r *PostgresRepository) Save(ctx context.Context, u *domain.User) error {
	cc, cexp, cdone := codeColumns(u.EmailConfirmation)
	rc, rexp, rdone := codeColumns(u.PasswordRecovery)
	_, err := r.db.ExecContext(ctx, `UPDATE users SET
		login = $2, email = $3, password_hash = $4, is_email_confirmed = $5,
		confirmation_code = $6, confirmation_expires_at = $7, confirmation_confirmed = $8,
		recovery_code = $9, recovery_expires_at = $10, recovery_confirmed = $11,
		deleted_at = $12
		WHERE id = $1`,
		u.ID, u.Login, u.Email, u.PasswordHash, u.IsEmailConfirmed,
		cc, cexp, cdone, rc, rexp, rdone,
		timeToNullTime(u.DeletedAt),
	)
	return err
}

// DeleteAll physically removes every user row. Maintenance only.
func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users`)
	return err
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		u     domain.User
		cc    sql.NullString
		cexp  sql.NullTime
		cdone bool
		rc    sql.NullString
		rexp  sql.NullTime
		rdone bool
		del   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.IsEmailConfirmed,
		&cc, &cexp, &cdone, &rc, &rexp, &rdone,
		&u.CreatedAt, &del,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.DeletedAt = nullTimeToPtr(del)
	u.EmailConfirmation = codeFromColumns(cc, cexp, cdone)
	u.PasswordRecovery = codeFromColumns(rc, rexp, rdone)
	return &u, nil
}

func codeColumns(c *domain.OneTimeCode) (sql.NullString, sql.NullTime, bool) {
	if c == nil {
		return sql.NullString{}, sql.NullTime{}, false
	}
	return sql.NullString{String: c.Code, Valid: true},
		sql.NullTime{Time: c.ExpiresAt, Valid: true},
		c.Confirmed
}

func codeFromColumns(code sql.NullString, exp sql.NullTime, confirmed bool) *domain.OneTimeCode {
	if !code.Valid {
		return nil
	}
	return &domain.OneTimeCode{Code: code.String, ExpiresAt: exp.Time, Confirmed: confirmed}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
