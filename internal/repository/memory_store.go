package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/queueease/internal/model"
)

// MemoryStore is an in-process QueueStore.  A transaction holds the store
// mutex from Begin until Commit or Rollback and works on a private copy,
// so concurrent units of work are fully serialized and a rolled back
// transaction leaves no trace.
type MemoryStore struct {
	mu sync.Mutex

	tickets       map[uint64]model.Ticket
	notifications []model.Notification
	services      map[uint64]model.Service
	nextTicket    uint64
	nextNote      uint64

	// Now stamps created_at/updated_at.  Defaults to UTC wall clock.
	Now func() time.Time
	// Fail, when set, is consulted before every transactional write with
	// the operation name; a non-nil result is returned as the error.
	Fail func(op string) error
}

// NewMemoryStore returns an empty store knowing the given services.
func NewMemoryStore(services ...model.Service) *MemoryStore {
	s := &MemoryStore{
		tickets:  map[uint64]model.Ticket{},
		services: map[uint64]model.Service{},
		Now:      utcNow,
	}
	for _, svc := range services {
		s.services[svc.ID] = svc
	}
	return s
}

// AddService registers a service in the catalog.
func (s *MemoryStore) AddService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// Services lists the catalog ordered by id.
func (s *MemoryStore) Services(context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Begin(ctx context.Context) (QueueTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	tx := &memoryTx{
		store:         s,
		tickets:       make(map[uint64]model.Ticket, len(s.tickets)),
		notifications: append([]model.Notification(nil), s.notifications...),
		nextTicket:    s.nextTicket,
		nextNote:      s.nextNote,
	}
	for id, t := range s.tickets {
		tx.tickets[id] = t
	}
	return tx, nil
}

func (s *MemoryStore) ListActive(context.Context) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := activeOf(s.tickets)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return lessByInsertion(out[i], out[j])
	})
	return out, nil
}

func (s *MemoryStore) ActiveForOwner(_ context.Context, ownerID uint64) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeForOwner(s.tickets, ownerID)
}

func (s *MemoryStore) TicketByID(_ context.Context, id uint64) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return model.Ticket{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status string, limit int) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncate(out, limit), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID uint64, limit int) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessByInsertion(out[j], out[i]) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) CountByStatus(context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{
		model.StatusWaiting:    0,
		model.StatusInProgress: 0,
		model.StatusCompleted:  0,
		model.StatusCanceled:   0,
	}
	for _, t := range s.tickets {
		out[t.Status]++
	}
	return out, nil
}

func (s *MemoryStore) CountByService(context.Context) ([]model.ServiceLoad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loads := make(map[uint64]*model.ServiceLoad, len(s.services))
	for id, svc := range s.services {
		loads[id] = &model.ServiceLoad{ServiceID: id, ServiceName: svc.Name}
	}
	for _, t := range s.tickets {
		l, ok := loads[t.ServiceID]
		if !ok {
			continue
		}
		l.Total++
		if t.Active() {
			l.Active++
		}
	}
	out := make([]model.ServiceLoad, 0, len(loads))
	for _, l := range loads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out, nil
}

func (s *MemoryStore) InsertNotification(_ context.Context, target *uint64, message string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNote++
	n := newNotification(s.nextNote, target, message, s.Now())
	s.notifications = append(s.notifications, n)
	return n, nil
}

func (s *MemoryStore) NotificationsFor(_ context.Context, userID uint64, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.TargetUserID == nil || *n.TargetUserID == userID {
			out = append(out, n)
		}
	}
	return truncate(out, limit), nil
}

func (s *MemoryStore) AllNotifications(_ context.Context, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0, len(s.notifications))
	for i := len(s.notifications) - 1; i >= 0; i-- {
		out = append(out, s.notifications[i])
	}
	return truncate(out, limit), nil
}

// memoryTx is a copy-on-begin unit of work over a MemoryStore.
type memoryTx struct {
	store         *MemoryStore
	tickets       map[uint64]model.Ticket
	notifications []model.Notification
	nextTicket    uint64
	nextNote      uint64
	done          bool
}

func (tx *memoryTx) fail(op string) error {
	if tx.done {
		return ErrTxDone
	}
	if tx.store.Fail != nil {
		return tx.store.Fail(op)
	}
	return nil
}

func (tx *memoryTx) ActiveTicketForOwner(_ context.Context, ownerID uint64) (model.Ticket, error) {
	if err := tx.fail("ActiveTicketForOwner"); err != nil {
		return model.Ticket{}, err
	}
	return activeForOwner(tx.tickets, ownerID)
}

func (tx *memoryTx) ActiveTickets(context.Context) ([]model.Ticket, error) {
	if err := tx.fail("ActiveTickets"); err != nil {
		return nil, err
	}
	out := activeOf(tx.tickets)
	sort.Slice(out, func(i, j int) bool { return lessByInsertion(out[i], out[j]) })
	return out, nil
}

func (tx *memoryTx) TicketByID(_ context.Context, id uint64) (model.Ticket, error) {
	if err := tx.fail("TicketByID"); err != nil {
		return model.Ticket{}, err
	}
	t, ok := tx.tickets[id]
	if !ok {
		return model.Ticket{}, ErrNotFound
	}
	return t, nil
}

func (tx *memoryTx) InsertTicket(_ context.Context, t model.Ticket) (model.Ticket, error) {
	if err := tx.fail("InsertTicket"); err != nil {
		return model.Ticket{}, err
	}
	if t.Active() {
		if _, err := activeForOwner(tx.tickets, t.OwnerID); err == nil {
			return model.Ticket{}, ErrDuplicateActive
		}
	}
	tx.nextTicket++
	now := tx.store.Now()
	t.ID = tx.nextTicket
	t.CreatedAt = now
	t.UpdatedAt = now
	tx.tickets[t.ID] = t
	return t, nil
}

func (tx *memoryTx) UpdateTicketStatus(_ context.Context, id uint64, status string) error {
	if err := tx.fail("UpdateTicketStatus"); err != nil {
		return err
	}
	t, ok := tx.tickets[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = tx.store.Now()
	tx.tickets[id] = t
	return nil
}

func (tx *memoryTx) UpdateTicketPosition(_ context.Context, id uint64, position int) error {
	if err := tx.fail("UpdateTicketPosition"); err != nil {
		return err
	}
	t, ok := tx.tickets[id]
	if !ok {
		return ErrNotFound
	}
	if position < 0 {
		position = 0
	}
	t.Position = position
	t.UpdatedAt = tx.store.Now()
	tx.tickets[id] = t
	return nil
}

func (tx *memoryTx) InsertNotification(_ context.Context, target *uint64, message string) (model.Notification, error) {
	if err := tx.fail("InsertNotification"); err != nil {
		return model.Notification{}, err
	}
	tx.nextNote++
	n := newNotification(tx.nextNote, target, message, tx.store.Now())
	tx.notifications = append(tx.notifications, n)
	return n, nil
}

func (tx *memoryTx) ServiceExists(_ context.Context, serviceID uint64) (bool, error) {
	if err := tx.fail("ServiceExists"); err != nil {
		return false, err
	}
	_, ok := tx.store.services[serviceID]
	return ok, nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	if tx.store.Fail != nil {
		if err := tx.store.Fail("Commit"); err != nil {
			tx.release()
			return err
		}
	}
	s := tx.store
	s.tickets = tx.tickets
	s.notifications = tx.notifications
	s.nextTicket = tx.nextTicket
	s.nextNote = tx.nextNote
	tx.release()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.release()
	return nil
}

func (tx *memoryTx) release() {
	tx.done = true
	tx.store.mu.Unlock()
}

func activeOf(tickets map[uint64]model.Ticket) []model.Ticket {
	out := make([]model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out
}

func activeForOwner(tickets map[uint64]model.Ticket, ownerID uint64) (model.Ticket, error) {
	for _, t := range tickets {
		if t.OwnerID == ownerID && t.Active() {
			return t, nil
		}
	}
	return model.Ticket{}, ErrNotFound
}

func lessByInsertion(a, b model.Ticket) bool { return a.ID < b.ID }

func newNotification(id uint64, target *uint64, message string, at time.Time) model.Notification {
	n := model.Notification{ID: id, Message: message, CreatedAt: at}
	if target != nil {
		v := *target
		n.TargetUserID = &v
	}
	return n
}

func truncate[T any](in []T, limit int) []T {
	limit = clampLimit(limit)
	if len(in) > limit {
		return in[:limit]
	}
	return in
}
