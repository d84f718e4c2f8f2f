package model

import "time"

// Ticket status values as stored in `tickets.status`.  Waiting and
// in-progress tickets are active; completed and canceled are terminal.
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCanceled   = "canceled"
)

// Ticket represents one user's place in the service queue as stored in
// the `tickets` table.  Position is only meaningful while the ticket is
// active; the column is NULL for terminal tickets and Position is zero.
//
// Fields:
//  ID        – primary key, assigned monotonically at insert.
//  OwnerID   – user holding the ticket.
//  ServiceID – requested service type.
//  Status    – one of the Status* constants.
//  Position  – 1-based rank among active tickets (0 when unset).
//  CreatedAt – immutable insertion time; ranking key.
//  UpdatedAt – timestamp of the last status or position change.
type Ticket struct {
	ID        uint64    `json:"id"`         // tickets.id
	OwnerID   uint64    `json:"owner_id"`   // tickets.owner_id
	ServiceID uint64    `json:"service_id"` // tickets.service_id
	Status    string    `json:"status"`     // tickets.status
	Position  int       `json:"position"`   // tickets.position (nullable)
	CreatedAt time.Time `json:"created_at"` // tickets.created_at
	UpdatedAt time.Time `json:"updated_at"` // tickets.updated_at
}

// Active reports whether the ticket still occupies a queue position.
func (t Ticket) Active() bool { return IsActiveStatus(t.Status) }

// IsActiveStatus reports whether s is waiting or in-progress.
func IsActiveStatus(s string) bool {
	return s == StatusWaiting || s == StatusInProgress
}

// IsTerminalStatus reports whether s is completed or canceled.
func IsTerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusCanceled
}

// ValidStatus reports whether s is any known ticket status.
func ValidStatus(s string) bool {
	return IsActiveStatus(s) || IsTerminalStatus(s)
}

// ServiceLoad is an aggregate row used by the queue statistics view.
type ServiceLoad struct {
	ServiceID   uint64 `json:"service_id"`
	ServiceName string `json:"service_name"`
	Total       int    `json:"total"`
	Active      int    `json:"active"`
}
