// Package notify separates "a notification exists" from "a connected
// client sees it now".  Notifications are persisted first; live delivery
// through the connection registry is best effort and never fails the
// caller.
package notify

import "github.com/iliyamo/queueease/internal/model"

// Live event types.
const (
	EventNotification = "notification"
	EventQueueUpdated = "queue_updated"
	EventPing         = "ping"
	EventPong         = "pong"
)

// Event is the envelope written to live connections.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// QueueEntry is the public view of an active ticket sent with
// queue_updated events.  Owner ids are not exposed.
type QueueEntry struct {
	TicketID  uint64 `json:"ticket_id"`
	ServiceID uint64 `json:"service_id"`
	Status    string `json:"status"`
	Position  int    `json:"position"`
}

// QueueView converts active tickets into their public form.
func QueueView(active []model.Ticket) []QueueEntry {
	out := make([]QueueEntry, 0, len(active))
	for _, t := range active {
		out = append(out, QueueEntry{TicketID: t.ID, ServiceID: t.ServiceID, Status: t.Status, Position: t.Position})
	}
	return out
}
