// Package engine owns the queue ordering and status-transition rules.
// Every mutation runs as one unit of work under the queue lock: status
// change, position reassignment and staged notifications commit together
// or not at all.  Live pushes and domain events leave only after commit.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/queueease/internal/broker"
	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/metrics"
	"github.com/iliyamo/queueease/internal/model"
	"github.com/iliyamo/queueease/internal/repository"
)

// Notifier stages notifications inside a unit of work and pushes them
// after commit.
type Notifier interface {
	Stage(ctx context.Context, tx repository.QueueTx, target *uint64, message string) (model.Notification, error)
	Deliver(notes ...model.Notification)
	QueueUpdated(active []model.Ticket)
}

// EventPublisher receives domain events for committed changes.
type EventPublisher interface {
	Publish(ctx context.Context, ev broker.TicketEvent) error
}

// Config holds queue policy.
type Config struct {
	// AutoPromote moves the new head to in-progress whenever a ticket
	// completes or is canceled.
	AutoPromote bool
	// QueueName scopes the lock key.
	QueueName string
	// PublishTimeout bounds each asynchronous event publish.
	PublishTimeout time.Duration
	// PublishBuffer is how many committed batches may wait for the
	// publisher before callers block.
	PublishBuffer int
}

// Deps are the collaborators the engine drives.  Events may be nil.
type Deps struct {
	Store    repository.QueueStore
	Notifier Notifier
	Locker   Locker
	Events   EventPublisher
}

type Engine struct {
	store    repository.QueueStore
	notifier Notifier
	locker   Locker
	events   EventPublisher
	cfg      Config
	lockKey  string
	log      zerolog.Logger

	// events leave in commit order through a single publisher goroutine
	pubMu    sync.Mutex
	pubQueue chan []broker.TicketEvent
	pubDone  chan struct{}
	closed   bool
	inflight sync.WaitGroup
}

func New(d Deps, cfg Config) *Engine {
	if d.Store == nil || d.Notifier == nil {
		panic("engine: nil store or notifier")
	}
	if d.Locker == nil {
		d.Locker = NewLocalLocker()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "main"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.PublishBuffer <= 0 {
		cfg.PublishBuffer = 256
	}
	e := &Engine{
		store:    d.Store,
		notifier: d.Notifier,
		locker:   d.Locker,
		events:   d.Events,
		cfg:      cfg,
		lockKey:  "queue:" + cfg.QueueName,
		log:      logging.Component("engine"),
		pubDone:  make(chan struct{}),
	}
	if e.events == nil {
		close(e.pubDone)
		return e
	}
	e.pubQueue = make(chan []broker.TicketEvent, cfg.PublishBuffer)
	go e.runPublisher()
	return e
}

// AutoPromote reports the configured promotion policy.
func (e *Engine) AutoPromote() bool { return e.cfg.AutoPromote }

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	Ticket model.Ticket
	Queue  []model.Ticket
}

// TransitionResult is the outcome of a successful status change.
type TransitionResult struct {
	Ticket   model.Ticket
	From     string
	Promoted *model.Ticket
	Queue    []model.Ticket
}

// outbox collects what leaves the process once the unit of work commits.
type outbox struct {
	notes  []model.Notification
	events []broker.TicketEvent
	queue  []model.Ticket
}

// Join places ownerID at the back of the queue for serviceID.
func (e *Engine) Join(ctx context.Context, ownerID, serviceID uint64) (res JoinResult, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("join", start, err) }(time.Now())

	var out outbox
	err = e.inQueue(ctx, &out, func(tx repository.QueueTx) error {
		cur, err := tx.ActiveTicketForOwner(ctx, ownerID)
		switch {
		case err == nil:
			return &ConflictError{OwnerID: ownerID, TicketID: cur.ID}
		case !errors.Is(err, repository.ErrNotFound):
			return storageErr("lookup active ticket", err)
		}

		ok, err := tx.ServiceExists(ctx, serviceID)
		if err != nil {
			return storageErr("lookup service", err)
		}
		if !ok {
			return &NotFoundError{Kind: "service", ID: serviceID}
		}

		ranked, err := e.rankedActive(ctx, tx)
		if err != nil {
			return err
		}
		t, err := tx.InsertTicket(ctx, model.Ticket{
			OwnerID:   ownerID,
			ServiceID: serviceID,
			Status:    model.StatusWaiting,
			Position:  AssignOnInsert(ranked),
		})
		if errors.Is(err, repository.ErrDuplicateActive) {
			return &ConflictError{OwnerID: ownerID}
		}
		if err != nil {
			return storageErr("insert ticket", err)
		}
		queue, err := e.applyReorder(ctx, tx, append(ranked, t))
		if err != nil {
			return err
		}
		for _, q := range queue {
			if q.ID == t.ID {
				t = q
			}
		}

		note, err := e.notifier.Stage(ctx, tx, &ownerID, msgJoined)
		if err != nil {
			return storageErr("stage notification", err)
		}

		ev := broker.NewEvent(broker.EventTicketJoined)
		ev.TicketID, ev.OwnerID, ev.ServiceID, ev.ActorID = t.ID, ownerID, serviceID, ownerID
		ev.To, ev.Position = t.Status, t.Position

		out = outbox{notes: []model.Notification{note}, events: []broker.TicketEvent{ev}, queue: queue}
		res = JoinResult{Ticket: t, Queue: queue}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	e.flush(out)
	e.log.Info().Uint64("ticket_id", res.Ticket.ID).Uint64("owner_id", ownerID).
		Int("position", res.Ticket.Position).Msg("ticket joined")
	return res, nil
}

// Transition moves ticketID to status to on behalf of actorID.
func (e *Engine) Transition(ctx context.Context, actorID, ticketID uint64, to string) (TransitionResult, error) {
	return e.transition(ctx, actorID, ticketID, to, nil)
}

// CancelOwn cancels ownerID's own ticket.  ErrForbidden when the ticket
// belongs to someone else.
func (e *Engine) CancelOwn(ctx context.Context, ownerID, ticketID uint64) (TransitionResult, error) {
	return e.transition(ctx, ownerID, ticketID, model.StatusCanceled, func(t model.Ticket) error {
		if t.OwnerID != ownerID {
			return ErrForbidden
		}
		return nil
	})
}

func (e *Engine) transition(ctx context.Context, actorID, ticketID uint64, to string, guard func(model.Ticket) error) (res TransitionResult, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("transition", start, err) }(time.Now())

	if !model.ValidStatus(to) {
		return TransitionResult{}, &InvalidTransitionError{TicketID: ticketID, To: to, Reason: "unknown status"}
	}

	var out outbox
	err = e.inQueue(ctx, &out, func(tx repository.QueueTx) error {
		t, err := tx.TicketByID(ctx, ticketID)
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Kind: "ticket", ID: ticketID}
		}
		if err != nil {
			return storageErr("load ticket", err)
		}
		if guard != nil {
			if err := guard(t); err != nil {
				return err
			}
		}
		if !CanTransition(t.Status, to) {
			ite := &InvalidTransitionError{TicketID: t.ID, From: t.Status, To: to}
			if model.IsTerminalStatus(t.Status) {
				ite.Reason = "ticket is already " + t.Status
			}
			return ite
		}

		ranked, err := e.rankedActive(ctx, tx)
		if err != nil {
			return err
		}
		if to == model.StatusInProgress && (len(ranked) == 0 || ranked[0].ID != t.ID) {
			return &InvalidTransitionError{TicketID: t.ID, From: t.Status, To: to, Reason: "only the head of the queue can be served"}
		}

		from := t.Status
		if err := tx.UpdateTicketStatus(ctx, t.ID, to); err != nil {
			return storageErr("update status", err)
		}
		t.Status = to
		owner := t.OwnerID
		note, err := e.notifier.Stage(ctx, tx, &owner, statusMessage(t.ID, to))
		if err != nil {
			return storageErr("stage notification", err)
		}
		out.notes = append(out.notes, note)

		queue := ranked
		if model.IsTerminalStatus(to) {
			if err := tx.UpdateTicketPosition(ctx, t.ID, 0); err != nil {
				return storageErr("clear position", err)
			}
			t.Position = 0
			queue, err = e.applyReorder(ctx, tx, without(ranked, t.ID))
			if err != nil {
				return err
			}
			promoted, err := e.promoteHead(ctx, tx, queue, &out)
			if err != nil {
				return err
			}
			res.Promoted = promoted
		} else {
			for i := range queue {
				if queue[i].ID == t.ID {
					queue[i].Status = to
					t.Position = queue[i].Position
				}
			}
		}
		ev := broker.NewEvent(broker.EventTicketTransitioned)
		ev.TicketID, ev.OwnerID, ev.ServiceID, ev.ActorID = t.ID, t.OwnerID, t.ServiceID, actorID
		ev.From, ev.To, ev.Position = from, to, t.Position
		out.events = append([]broker.TicketEvent{ev}, out.events...)

		out.queue = queue
		res.Ticket, res.From, res.Queue = t, from, queue
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	e.flush(out)
	e.log.Info().Uint64("ticket_id", ticketID).Uint64("actor_id", actorID).
		Str("from", res.From).Str("to", to).Msg("ticket transitioned")
	return res, nil
}

// promoteHead runs the single auto-promotion pass after a ticket left the
// queue.  queue must already be densely ranked; it is updated in place.
func (e *Engine) promoteHead(ctx context.Context, tx repository.QueueTx, queue []model.Ticket, out *outbox) (*model.Ticket, error) {
	if !e.cfg.AutoPromote || len(queue) == 0 || queue[0].Status != model.StatusWaiting {
		return nil, nil
	}
	head := &queue[0]
	if err := tx.UpdateTicketStatus(ctx, head.ID, model.StatusInProgress); err != nil {
		return nil, storageErr("promote head", err)
	}
	head.Status = model.StatusInProgress

	headOwner := head.OwnerID
	note, err := e.notifier.Stage(ctx, tx, &headOwner, statusMessage(head.ID, model.StatusInProgress))
	if err != nil {
		return nil, storageErr("stage notification", err)
	}
	out.notes = append(out.notes, note)

	if len(queue) > 1 {
		nextOwner := queue[1].OwnerID
		note, err := e.notifier.Stage(ctx, tx, &nextOwner, msgNextInLine)
		if err != nil {
			return nil, storageErr("stage notification", err)
		}
		out.notes = append(out.notes, note)
	}

	ev := broker.NewEvent(broker.EventTicketPromoted)
	ev.TicketID, ev.OwnerID, ev.ServiceID = head.ID, head.OwnerID, head.ServiceID
	ev.From, ev.To, ev.Position = model.StatusWaiting, model.StatusInProgress, head.Position
	out.events = append(out.events, ev)

	promoted := *head
	return &promoted, nil
}

// NotifyNext reminds the first waiting ticket's owner that they are up
// next.  NotFoundError when nobody is waiting.
func (e *Engine) NotifyNext(ctx context.Context, actorID uint64) (ticket model.Ticket, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("notify_next", start, err) }(time.Now())

	var out outbox
	err = e.inQueue(ctx, &out, func(tx repository.QueueTx) error {
		ranked, err := e.rankedActive(ctx, tx)
		if err != nil {
			return err
		}
		for _, t := range ranked {
			if t.Status != model.StatusWaiting {
				continue
			}
			owner := t.OwnerID
			note, err := e.notifier.Stage(ctx, tx, &owner, notifyNextMessage(t.Position))
			if err != nil {
				return storageErr("stage notification", err)
			}
			ev := broker.NewEvent(broker.EventNotifyNext)
			ev.TicketID, ev.OwnerID, ev.ServiceID, ev.ActorID, ev.Position = t.ID, t.OwnerID, t.ServiceID, actorID, t.Position
			out = outbox{notes: []model.Notification{note}, events: []broker.TicketEvent{ev}}
			ticket = t
			return nil
		}
		return &NotFoundError{Kind: "waiting ticket"}
	})
	if err != nil {
		return model.Ticket{}, err
	}
	e.flush(out)
	return ticket, nil
}

// Snapshot returns the active queue ordered by position.
func (e *Engine) Snapshot(ctx context.Context) ([]model.Ticket, error) {
	q, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, storageErr("list active", err)
	}
	return q, nil
}

// Current returns the ticket being served.
func (e *Engine) Current(ctx context.Context) (model.Ticket, error) {
	q, err := e.Snapshot(ctx)
	if err != nil {
		return model.Ticket{}, err
	}
	for _, t := range q {
		if t.Status == model.StatusInProgress {
			return t, nil
		}
	}
	return model.Ticket{}, &NotFoundError{Kind: "serving ticket"}
}

// ActiveFor returns ownerID's active ticket.
func (e *Engine) ActiveFor(ctx context.Context, ownerID uint64) (model.Ticket, error) {
	t, err := e.store.ActiveForOwner(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Ticket{}, &NotFoundError{Kind: "active ticket for user", ID: ownerID}
	}
	if err != nil {
		return model.Ticket{}, storageErr("lookup active ticket", err)
	}
	return t, nil
}

// TicketsOf returns ownerID's tickets, newest first.
func (e *Engine) TicketsOf(ctx context.Context, ownerID uint64, limit int) ([]model.Ticket, error) {
	ts, err := e.store.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, storageErr("list tickets", err)
	}
	return ts, nil
}

// History returns tickets in a terminal status, most recent first.
func (e *Engine) History(ctx context.Context, status string, limit int) ([]model.Ticket, error) {
	if !model.IsTerminalStatus(status) {
		return nil, &InvalidTransitionError{To: status, Reason: "history is kept for completed and canceled tickets"}
	}
	ts, err := e.store.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, storageErr("list history", err)
	}
	return ts, nil
}

// Stats summarizes ticket counts.
type Stats struct {
	ByStatus  map[string]int      `json:"by_status"`
	ByService []model.ServiceLoad `json:"by_service"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	byStatus, err := e.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, storageErr("count by status", err)
	}
	byService, err := e.store.CountByService(ctx)
	if err != nil {
		return Stats{}, storageErr("count by service", err)
	}
	return Stats{ByStatus: byStatus, ByService: byService}, nil
}

// Wait blocks until every event queued so far has been published.
func (e *Engine) Wait() { e.inflight.Wait() }

// Close drains the event queue and stops the publisher.  Events raised
// after Close are dropped.
func (e *Engine) Close() {
	e.pubMu.Lock()
	if !e.closed {
		e.closed = true
		if e.pubQueue != nil {
			close(e.pubQueue)
		}
	}
	e.pubMu.Unlock()
	<-e.pubDone
}

// PublishBroadcast queues a notification.broadcast event behind every
// event already committed.
func (e *Engine) PublishBroadcast(actorID uint64, message string) {
	ev := broker.NewEvent(broker.EventBroadcast)
	ev.ActorID, ev.Message = actorID, message
	e.publish([]broker.TicketEvent{ev})
}

// inQueue runs fn as one unit of work under the queue lock.  The events
// fn adds to out are queued for publishing before the lock is released,
// so they leave in commit order.
func (e *Engine) inQueue(ctx context.Context, out *outbox, fn func(tx repository.QueueTx) error) error {
	unlock, err := e.locker.Lock(ctx, e.lockKey)
	if err != nil {
		return storageErr("acquire queue lock", err)
	}
	defer unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return storageErr("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	committed = true
	e.publish(out.events)
	return nil
}

// rankedActive loads the locked active set and repairs any drift from the
// dense ranking before the caller relies on positions.
func (e *Engine) rankedActive(ctx context.Context, tx repository.QueueTx) ([]model.Ticket, error) {
	active, err := tx.ActiveTickets(ctx)
	if err != nil {
		return nil, storageErr("load active tickets", err)
	}
	return e.applyReorder(ctx, tx, active)
}

// applyReorder ranks active and writes the positions that changed.
func (e *Engine) applyReorder(ctx context.Context, tx repository.QueueTx, active []model.Ticket) ([]model.Ticket, error) {
	ranked, changes := Reorder(active)
	for _, c := range changes {
		if err := tx.UpdateTicketPosition(ctx, c.TicketID, c.To); err != nil {
			return nil, storageErr("reorder", err)
		}
	}
	return ranked, nil
}

// flush pushes a committed outbox to live clients.
func (e *Engine) flush(out outbox) {
	e.notifier.Deliver(out.notes...)
	if out.queue != nil {
		e.notifier.QueueUpdated(out.queue)
		metrics.QueueLength.Set(float64(len(out.queue)))
	}
	for _, ev := range out.events {
		if ev.Type == broker.EventTicketPromoted {
			metrics.QueuePromotions.Inc()
		}
	}
}

func (e *Engine) publish(events []broker.TicketEvent) {
	if e.events == nil || len(events) == 0 {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if e.closed {
		e.log.Warn().Int("events", len(events)).Msg("engine closed, dropping events")
		return
	}
	e.inflight.Add(1)
	e.pubQueue <- events
}

func (e *Engine) runPublisher() {
	defer close(e.pubDone)
	for batch := range e.pubQueue {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
		for _, ev := range batch {
			if err := e.events.Publish(ctx, ev); err != nil {
				e.log.Warn().Err(err).Str("event", ev.Type).Uint64("ticket_id", ev.TicketID).Msg("publish event")
			}
		}
		cancel()
		e.inflight.Done()
	}
}

func without(ts []model.Ticket, id uint64) []model.Ticket {
	out := make([]model.Ticket, 0, len(ts))
	for _, t := range ts {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
