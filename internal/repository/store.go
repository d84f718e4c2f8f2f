package repository

import (
	"context"

	"github.com/iliyamo/queueease/internal/model"
)

// QueueStore is the durable home of tickets and notifications.  Reads
// outside a transaction are snapshot views for display; every write goes
// through a QueueTx obtained from Begin.
type QueueStore interface {
	NotificationStore

	// Begin opens a unit of work.  Callers must Commit or Rollback.
	Begin(ctx context.Context) (QueueTx, error)
	// ListActive returns waiting and in-progress tickets by position.
	ListActive(ctx context.Context) ([]model.Ticket, error)
	// ActiveForOwner returns the owner's active ticket or ErrNotFound.
	ActiveForOwner(ctx context.Context, ownerID uint64) (model.Ticket, error)
	TicketByID(ctx context.Context, id uint64) (model.Ticket, error)
	// ListByStatus returns tickets in status, most recently updated first.
	ListByStatus(ctx context.Context, status string, limit int) ([]model.Ticket, error)
	ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]model.Ticket, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountByService(ctx context.Context) ([]model.ServiceLoad, error)
}

// QueueTx is a single unit of work over the ticket table.  Implementations
// lock the rows they return so that check-then-write sequences observe a
// stable queue until Commit or Rollback.
type QueueTx interface {
	// ActiveTicketForOwner returns the owner's active ticket or ErrNotFound.
	ActiveTicketForOwner(ctx context.Context, ownerID uint64) (model.Ticket, error)
	// ActiveTickets returns active tickets ordered by created_at, id.
	ActiveTickets(ctx context.Context) ([]model.Ticket, error)
	// TicketByID returns the ticket or ErrNotFound.
	TicketByID(ctx context.Context, id uint64) (model.Ticket, error)
	// InsertTicket stores t and returns it with ID and timestamps filled.
	// Returns ErrDuplicateActive when the owner already holds an active ticket.
	InsertTicket(ctx context.Context, t model.Ticket) (model.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id uint64, status string) error
	// UpdateTicketPosition sets the position; 0 clears it.
	UpdateTicketPosition(ctx context.Context, id uint64, position int) error
	InsertNotification(ctx context.Context, target *uint64, message string) (model.Notification, error)
	ServiceExists(ctx context.Context, serviceID uint64) (bool, error)
	Commit() error
	Rollback() error
}

// NotificationStore persists notifications outside of ticket transitions
// (admin messages, broadcasts) and serves history views.
type NotificationStore interface {
	InsertNotification(ctx context.Context, target *uint64, message string) (model.Notification, error)
	// NotificationsFor returns rows targeted at userID plus broadcasts,
	// newest first.
	NotificationsFor(ctx context.Context, userID uint64, limit int) ([]model.Notification, error)
	AllNotifications(ctx context.Context, limit int) ([]model.Notification, error)
}
