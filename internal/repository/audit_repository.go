package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/queueease/internal/model"
)

// AuditRepo writes and reads the `audit_logs` table.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Record appends one audit row.
func (r *AuditRepo) Record(ctx context.Context, actorID, ticketID uint64, action string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_logs (actor_id, ticket_id, action, created_at) VALUES (?,?,?,?)",
		actorID, ticketID, action, at.UTC())
	return err
}

// Recent returns the newest audit rows first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, actor_id, ticket_id, action, created_at FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT ?",
		clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuditLog
	for rows.Next() {
		var a model.AuditLog
		if err := rows.Scan(&a.ID, &a.ActorID, &a.TicketID, &a.Action, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
