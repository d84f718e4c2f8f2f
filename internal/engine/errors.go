package engine

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when a user acts on a ticket they do not own.
var ErrForbidden = errors.New("forbidden")

// ConflictError rejects a join while the owner already holds an active ticket.
type ConflictError struct {
	OwnerID  uint64
	TicketID uint64 // the ticket already held, 0 if unknown
}

func (e *ConflictError) Error() string {
	if e.TicketID != 0 {
		return fmt.Sprintf("user %d already holds active ticket #%d", e.OwnerID, e.TicketID)
	}
	return fmt.Sprintf("user %d already holds an active ticket", e.OwnerID)
}

// NotFoundError reports a missing ticket, user or service.
type NotFoundError struct {
	Kind string // "ticket", "user", "service", "queue head"
	ID   uint64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// InvalidTransitionError rejects a status change the state machine does
// not allow from the ticket's current status.
type InvalidTransitionError struct {
	TicketID uint64
	From     string
	To       string
	Reason   string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("ticket %d: cannot move from %q to %q", e.TicketID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StorageError wraps a persistence failure.  The surrounding unit of work
// has been rolled back when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
