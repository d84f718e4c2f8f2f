package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/queueease/internal/model"
)

// MemoryAudit is the in-process audit trail.
type MemoryAudit struct {
	mu   sync.Mutex
	rows []model.AuditLog
}

func (a *MemoryAudit) Record(_ context.Context, actorID, ticketID uint64, action string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, model.AuditLog{
		ID: uint64(len(a.rows) + 1), ActorID: actorID, TicketID: ticketID, Action: action, CreatedAt: at.UTC(),
	})
	return nil
}

func (a *MemoryAudit) Recent(_ context.Context, limit int) ([]model.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.AuditLog, 0, len(a.rows))
	for i := len(a.rows) - 1; i >= 0; i-- {
		out = append(out, a.rows[i])
	}
	return truncate(out, limit), nil
}
