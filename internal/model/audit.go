package model

import "time"

// AuditLog mirrors the `audit_logs` table.  Rows are written by the
// broker consumer for every queue event; ActorID is zero for events
// triggered by the system itself (auto-promotion).
type AuditLog struct {
	ID        uint64    `json:"id"`         // audit_logs.id
	ActorID   uint64    `json:"actor_id"`   // audit_logs.actor_id
	TicketID  uint64    `json:"ticket_id"`  // audit_logs.ticket_id
	Action    string    `json:"action"`     // audit_logs.action
	CreatedAt time.Time `json:"created_at"` // audit_logs.created_at
}
