package audit

import (
	"context"
	"database/sql"
)

// PostgresRepository persists audit entries in the audit_log table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_log (id, user_id, action, device_id, ip, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Action, e.DeviceID, e.IP, e.Detail, e.CreatedAt,
	)
	return err
}

// DeleteAll physically removes every audit row. Maintenance only.
func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_log`)
	return err
}
