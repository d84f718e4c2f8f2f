package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/queueease/internal/model"
)

func steppingClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTestMemoryStore() *MemoryStore {
	s := NewMemoryStore(model.Service{ID: 1, Name: "Teller"})
	s.Now = steppingClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	return s
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertTicket(ctx, model.Ticket{OwnerID: 1, ServiceID: 1, Status: model.StatusWaiting, Position: 1})
	require.NoError(t, err)
	_, err = tx.InsertNotification(ctx, nil, "hi")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	notes, err := s.AllNotifications(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestMemoryStore_CommitPublishesWrites(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	tk, err := tx.InsertTicket(ctx, model.Ticket{OwnerID: 1, ServiceID: 1, Status: model.StatusWaiting, Position: 1})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	got, err := s.ActiveForOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), ErrTxDone)
}

func TestMemoryStore_DuplicateActiveOwner(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.InsertTicket(ctx, model.Ticket{OwnerID: 1, ServiceID: 1, Status: model.StatusWaiting, Position: 1})
	require.NoError(t, err)
	_, err = tx.InsertTicket(ctx, model.Ticket{OwnerID: 1, ServiceID: 1, Status: model.StatusWaiting, Position: 2})
	assert.ErrorIs(t, err, ErrDuplicateActive)
}

func TestMemoryStore_FailHookAndCommitFailure(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()
	boom := errors.New("disk full")
	s.Fail = func(op string) error {
		if op == "Commit" {
			return boom
		}
		return nil
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertTicket(ctx, model.Ticket{OwnerID: 1, ServiceID: 1, Status: model.StatusWaiting, Position: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Commit(), boom)

	s.Fail = nil
	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMemoryStore_ActiveTicketsInsertionOrder(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for owner := uint64(1); owner <= 3; owner++ {
		_, err := tx.InsertTicket(ctx, model.Ticket{OwnerID: owner, ServiceID: 1, Status: model.StatusWaiting, Position: int(4 - owner)})
		require.NoError(t, err)
	}
	got, err := tx.ActiveTickets(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, got, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{got[0].OwnerID, got[1].OwnerID, got[2].OwnerID})

	byPos, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), byPos[0].OwnerID)
}

func TestMemoryStore_NotificationsForMergesBroadcast(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()
	u1, u2 := uint64(1), uint64(2)

	_, _ = s.InsertNotification(ctx, &u1, "for one")
	_, _ = s.InsertNotification(ctx, &u2, "for two")
	_, _ = s.InsertNotification(ctx, nil, "for all")

	got, err := s.NotificationsFor(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "for all", got[0].Message)
	assert.Equal(t, "for one", got[1].Message)
}

func TestMemoryStore_CountByService(t *testing.T) {
	s := newTestMemoryStore()
	s.AddService(model.Service{ID: 2, Name: "Loans"})
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	a, _ := tx.InsertTicket(ctx, model.Ticket{OwnerID: 1, ServiceID: 1, Status: model.StatusWaiting, Position: 1})
	_, _ = tx.InsertTicket(ctx, model.Ticket{OwnerID: 2, ServiceID: 2, Status: model.StatusWaiting, Position: 2})
	require.NoError(t, tx.UpdateTicketStatus(ctx, a.ID, model.StatusCompleted))
	require.NoError(t, tx.Commit())

	loads, err := s.CountByService(ctx)
	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, model.ServiceLoad{ServiceID: 1, ServiceName: "Teller", Total: 1, Active: 0}, loads[0])
	assert.Equal(t, model.ServiceLoad{ServiceID: 2, ServiceName: "Loans", Total: 1, Active: 1}, loads[1])
}

func TestMemoryStore_ActiveTicketsIgnoreClockSkew(t *testing.T) {
	s := NewMemoryStore(model.Service{ID: 1, Name: "Teller"})
	clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.Now = func() time.Time {
		clock = clock.Add(-time.Second)
		return clock
	}
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for owner := uint64(1); owner <= 3; owner++ {
		_, err := tx.InsertTicket(ctx, model.Ticket{OwnerID: owner, ServiceID: 1, Status: model.StatusWaiting, Position: int(owner)})
		require.NoError(t, err)
	}
	got, err := tx.ActiveTickets(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, got, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{got[0].OwnerID, got[1].OwnerID, got[2].OwnerID})
	assert.True(t, got[0].CreatedAt.After(got[2].CreatedAt))
}
