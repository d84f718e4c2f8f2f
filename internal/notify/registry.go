package notify

import (
	"sync"

	"github.com/iliyamo/queueease/internal/metrics"
)

// Channel is one live connection owned by a user.
type Channel interface {
	ID() string
	// Send enqueues ev without blocking; false means the channel is full
	// or closed.
	Send(ev Event) bool
	Close()
}

// Pusher delivers live events.  Implementations never block on slow
// consumers and never report errors.
type Pusher interface {
	Push(userID uint64, ev Event)
	PushAll(ev Event)
}

// Registry maps user ids to their live channels.  A user may have any
// number of connections, including none.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uint64]map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{byUser: map[uint64]map[string]Channel{}}
}

// Register associates ch with userID and returns the matching
// unregister function.  Calling it more than once is harmless.  A channel
// whose ID is already registered replaces the old one.
func (r *Registry) Register(userID uint64, ch Channel) func() {
	r.mu.Lock()
	set, ok := r.byUser[userID]
	if !ok {
		set = map[string]Channel{}
		r.byUser[userID] = set
	}
	_, dup := set[ch.ID()]
	set[ch.ID()] = ch
	r.mu.Unlock()
	if !dup {
		metrics.WSConnections.Inc()
	}

	var once sync.Once
	return func() { once.Do(func() { r.remove(userID, ch.ID()) }) }
}

// remove deletes a channel and reports whether it was present.
func (r *Registry) remove(userID uint64, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
	metrics.WSConnections.Dec()
	return true
}

// Connections returns how many channels userID has open.
func (r *Registry) Connections(userID uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Total returns the number of open channels across all users.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.byUser {
		n += len(set)
	}
	return n
}

// Push sends ev to every channel of userID.
func (r *Registry) Push(userID uint64, ev Event) {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.byUser[userID]))
	for _, ch := range r.byUser[userID] {
		targets = append(targets, ch)
	}
	r.mu.RUnlock()
	if len(targets) == 0 {
		metrics.LivePushes.WithLabelValues("offline").Inc()
		return
	}
	r.sendAll(map[uint64][]Channel{userID: targets}, ev)
}

// PushAll sends ev to every open channel.
func (r *Registry) PushAll(ev Event) {
	r.mu.RLock()
	targets := make(map[uint64][]Channel, len(r.byUser))
	for uid, set := range r.byUser {
		for _, ch := range set {
			targets[uid] = append(targets[uid], ch)
		}
	}
	r.mu.RUnlock()
	r.sendAll(targets, ev)
}

// sendAll delivers outside the lock; channels that refuse are dropped.
func (r *Registry) sendAll(targets map[uint64][]Channel, ev Event) {
	for uid, chans := range targets {
		for _, ch := range chans {
			if ch.Send(ev) {
				metrics.LivePushes.WithLabelValues("delivered").Inc()
				continue
			}
			metrics.LivePushes.WithLabelValues("dropped").Inc()
			if r.remove(uid, ch.ID()) {
				ch.Close()
			}
		}
	}
}
