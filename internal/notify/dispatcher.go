package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/metrics"
	"github.com/iliyamo/queueease/internal/model"
	"github.com/iliyamo/queueease/internal/repository"
)

// Dispatcher persists notifications and pushes them to live channels.
type Dispatcher struct {
	store  repository.NotificationStore
	pusher Pusher
	log    zerolog.Logger
}

func NewDispatcher(store repository.NotificationStore, pusher Pusher) *Dispatcher {
	return &Dispatcher{store: store, pusher: pusher, log: logging.Component("dispatcher")}
}

// Stage writes a notification inside the caller's unit of work.  Nothing
// is pushed until the caller commits and hands the result to Deliver.
func (d *Dispatcher) Stage(ctx context.Context, tx repository.QueueTx, target *uint64, message string) (model.Notification, error) {
	n, err := tx.InsertNotification(ctx, target, message)
	if err != nil {
		return model.Notification{}, fmt.Errorf("stage notification: %w", err)
	}
	return n, nil
}

// Deliver pushes committed notifications to whoever is connected.
func (d *Dispatcher) Deliver(notes ...model.Notification) {
	for _, n := range notes {
		d.push(n)
	}
}

// Notify persists a notification for target, then pushes it.
func (d *Dispatcher) Notify(ctx context.Context, target uint64, message string) (model.Notification, error) {
	n, err := d.store.InsertNotification(ctx, &target, message)
	if err != nil {
		return model.Notification{}, fmt.Errorf("persist notification: %w", err)
	}
	d.push(n)
	return n, nil
}

// Broadcast persists an untargeted notification, then pushes it to every
// connection.
func (d *Dispatcher) Broadcast(ctx context.Context, message string) (model.Notification, error) {
	n, err := d.store.InsertNotification(ctx, nil, message)
	if err != nil {
		return model.Notification{}, fmt.Errorf("persist broadcast: %w", err)
	}
	d.push(n)
	return n, nil
}

// QueueUpdated tells every client the active queue changed.  Not persisted.
func (d *Dispatcher) QueueUpdated(active []model.Ticket) {
	d.pusher.PushAll(Event{Type: EventQueueUpdated, Data: QueueView(active)})
}

// History returns userID's notifications including broadcasts, newest first.
func (d *Dispatcher) History(ctx context.Context, userID uint64, limit int) ([]model.Notification, error) {
	return d.store.NotificationsFor(ctx, userID, limit)
}

// All returns every notification, newest first.
func (d *Dispatcher) All(ctx context.Context, limit int) ([]model.Notification, error) {
	return d.store.AllNotifications(ctx, limit)
}

func (d *Dispatcher) push(n model.Notification) {
	ev := Event{Type: EventNotification, Data: n}
	if n.Broadcast() {
		metrics.NotificationsPersisted.WithLabelValues("broadcast").Inc()
		d.pusher.PushAll(ev)
		return
	}
	metrics.NotificationsPersisted.WithLabelValues("targeted").Inc()
	d.log.Debug().Uint64("user_id", *n.TargetUserID).Uint64("notification_id", n.ID).Msg("push")
	d.pusher.Push(*n.TargetUserID, ev)
}
