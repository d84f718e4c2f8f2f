package engine

import (
	"sort"

	"github.com/iliyamo/queueease/internal/model"
)

// PositionChange is one row the assignor wants rewritten.
type PositionChange struct {
	TicketID uint64
	From     int
	To       int
}

// AssignOnInsert returns the position a new ticket takes behind the
// given active set.
func AssignOnInsert(active []model.Ticket) int {
	return len(active) + 1
}

// Rank returns a copy of active in insertion order.  Ticket ids are
// assigned under the queue lock, so they order joins even when the
// created_at clocks of several instances disagree.
func Rank(active []model.Ticket) []model.Ticket {
	out := append([]model.Ticket(nil), active...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reorder computes the dense 1..N ranking of active and returns the
// ranked tickets with positions applied plus the rows whose stored
// position differs.  Non-active tickets in the input are ignored.
// Applying the changes and calling Reorder again yields no changes.
func Reorder(active []model.Ticket) ([]model.Ticket, []PositionChange) {
	live := make([]model.Ticket, 0, len(active))
	for _, t := range active {
		if t.Active() {
			live = append(live, t)
		}
	}
	ranked := Rank(live)
	var changes []PositionChange
	for i := range ranked {
		want := i + 1
		if ranked[i].Position != want {
			changes = append(changes, PositionChange{TicketID: ranked[i].ID, From: ranked[i].Position, To: want})
			ranked[i].Position = want
		}
	}
	return ranked, changes
}

// DenseRanked reports whether active already satisfies the ordering
// rule: positions are exactly 1..N following insertion order.
func DenseRanked(active []model.Ticket) bool {
	ranked := Rank(active)
	for i, t := range ranked {
		if t.Position != i+1 {
			return false
		}
	}
	return true
}
