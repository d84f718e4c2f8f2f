package engine

import (
	"fmt"

	"github.com/iliyamo/queueease/internal/model"
)

const (
	msgJoined     = "You are now in the queue, please wait for your turn."
	msgNextInLine = "You are next in line. Please be prepared."
)

func statusMessage(ticketID uint64, status string) string {
	switch status {
	case model.StatusInProgress:
		return fmt.Sprintf("Your ticket #%d is now in progress.", ticketID)
	case model.StatusCompleted:
		return fmt.Sprintf("Ticket #%d has been completed.", ticketID)
	case model.StatusCanceled:
		return fmt.Sprintf("Ticket #%d has been canceled.", ticketID)
	}
	return fmt.Sprintf("Ticket #%d is now %s.", ticketID, status)
}

func notifyNextMessage(position int) string {
	return fmt.Sprintf("You are next in line. Please be prepared for queue #%d.", position)
}
