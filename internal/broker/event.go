// Package broker carries queue domain events over RabbitMQ: a publisher
// used after every committed queue mutation and a consumer that records
// them in the audit trail.
package broker

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published on the events queue.
const (
	EventTicketJoined       = "ticket.joined"
	EventTicketTransitioned = "ticket.transitioned"
	EventTicketPromoted     = "ticket.promoted"
	EventNotifyNext         = "queue.notify_next"
	EventBroadcast          = "notification.broadcast"
)

// TicketEvent describes one committed change to the queue.  ActorID is
// zero when the system acted on its own (auto-promotion).
type TicketEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	TicketID   uint64    `json:"ticket_id,omitempty"`
	OwnerID    uint64    `json:"owner_id,omitempty"`
	ServiceID  uint64    `json:"service_id,omitempty"`
	ActorID    uint64    `json:"actor_id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Position   int       `json:"position,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh event id and time.
func NewEvent(typ string) TicketEvent {
	return TicketEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
	}
}

// Describe renders the event as the one-line action stored in the audit
// trail.
func (e TicketEvent) Describe() string {
	switch e.Type {
	case EventTicketJoined:
		return fmt.Sprintf("ticket #%d joined by user %d at position %d", e.TicketID, e.OwnerID, e.Position)
	case EventTicketTransitioned:
		return fmt.Sprintf("ticket #%d moved %s -> %s", e.TicketID, e.From, e.To)
	case EventTicketPromoted:
		return fmt.Sprintf("ticket #%d auto-promoted to %s", e.TicketID, e.To)
	case EventNotifyNext:
		return fmt.Sprintf("next-in-line notice sent for ticket #%d", e.TicketID)
	case EventBroadcast:
		return "broadcast: " + e.Message
	}
	return e.Type
}
