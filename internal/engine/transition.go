package engine

import "github.com/iliyamo/queueease/internal/model"

// transitions lists every allowed status change.  Terminal states have no
// outgoing edges.
var transitions = map[string]map[string]bool{
	model.StatusWaiting: {
		model.StatusInProgress: true,
		model.StatusCanceled:   true,
		model.StatusCompleted:  true,
	},
	model.StatusInProgress: {
		model.StatusCanceled:  true,
		model.StatusCompleted: true,
	},
}

// CanTransition reports whether a ticket in from may move to to.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Action names accepted by the admin action endpoint.
const (
	ActionPrioritize = "prioritize"
	ActionComplete   = "complete"
	ActionCancel     = "cancel"
)

// StatusForAction maps an admin action to the target status.
func StatusForAction(action string) (string, bool) {
	switch action {
	case ActionPrioritize:
		return model.StatusInProgress, true
	case ActionComplete:
		return model.StatusCompleted, true
	case ActionCancel:
		return model.StatusCanceled, true
	}
	return "", false
}
