package repositories

import (
	"context"
	"database/sql"

	"teamboard/internal/models"
)

// AuditRepository stores the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context) ([]models.AuditLogEntry, error)
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, e *models.AuditLogEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, details, created_at) VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.ActorID, e.Action, e.Details, e.Timestamp)
	return err
}

// List returns the whole log, newest first, with the actor's public profile.
func (r *auditRepository) List(ctx context.Context) ([]models.AuditLogEntry, error) {
	q := `
SELECT l.id, l.actor_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
       l.action, l.details, l.created_at
FROM audit_logs l
LEFT JOIN users u ON u.id = l.actor_id
ORDER BY l.created_at DESC, l.id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.AuditLogEntry{}
	for rows.Next() {
		var (
			e     models.AuditLogEntry
			name  string
			email string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &name, &email, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Actor = &models.UserRef{ID: e.ActorID, Name: name, Email: email}
		out = append(out, e)
	}
	return out, rows.Err()
}
