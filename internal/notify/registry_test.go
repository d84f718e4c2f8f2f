package notify

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/queueease/internal/metrics"
)

type fakeChannel struct {
	id     string
	mu     sync.Mutex
	got    []Event
	full   bool
	closed bool
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.got = append(c.got, ev)
	return true
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeChannel) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.got...)
}

func TestRegistry_PushReachesEveryConnectionOfUser(t *testing.T) {
	r := NewRegistry()
	a1 := &fakeChannel{id: "a1"}
	a2 := &fakeChannel{id: "a2"}
	b := &fakeChannel{id: "b"}
	r.Register(1, a1)
	r.Register(1, a2)
	r.Register(2, b)

	r.Push(1, Event{Type: EventNotification, Data: "hi"})

	assert.Len(t, a1.events(), 1)
	assert.Len(t, a2.events(), 1)
	assert.Empty(t, b.events())
	assert.Equal(t, 2, r.Connections(1))
	assert.Equal(t, 3, r.Total())
}

func TestRegistry_PushToOfflineUserIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() { r.Push(42, Event{Type: EventNotification}) })
	assert.Equal(t, 0, r.Connections(42))
}

func TestRegistry_PushAll(t *testing.T) {
	r := NewRegistry()
	a := &fakeChannel{id: "a"}
	b := &fakeChannel{id: "b"}
	r.Register(1, a)
	r.Register(2, b)

	r.PushAll(Event{Type: EventQueueUpdated})

	require.Len(t, a.events(), 1)
	require.Len(t, b.events(), 1)
	assert.Equal(t, EventQueueUpdated, b.events()[0].Type)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := &fakeChannel{id: "a"}
	unregister := r.Register(1, a)

	unregister()
	unregister()

	assert.Equal(t, 0, r.Connections(1))
	assert.Equal(t, 0, r.Total())
	r.Push(1, Event{Type: EventNotification})
	assert.Empty(t, a.events())
}

func TestRegistry_DropsChannelThatRefuses(t *testing.T) {
	r := NewRegistry()
	slow := &fakeChannel{id: "slow", full: true}
	ok := &fakeChannel{id: "ok"}
	r.Register(1, slow)
	r.Register(1, ok)

	r.Push(1, Event{Type: EventNotification})

	assert.True(t, slow.closed)
	assert.Len(t, ok.events(), 1)
	assert.Equal(t, 1, r.Connections(1))
}

func TestRegistry_ConcurrentRegisterAndPush(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		ch := &fakeChannel{id: string(rune('a' + i))}
		go func() {
			defer wg.Done()
			unregister := r.Register(7, ch)
			unregister()
		}()
		go func() {
			defer wg.Done()
			r.PushAll(Event{Type: EventPing})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Total())
}

func TestRegistry_ReRegisterKeepsGaugeBalanced(t *testing.T) {
	r := NewRegistry()
	base := testutil.ToFloat64(metrics.WSConnections)

	first := &fakeChannel{id: "c1"}
	second := &fakeChannel{id: "c1"}
	unregister := r.Register(1, first)
	r.Register(1, second)
	assert.Equal(t, base+1, testutil.ToFloat64(metrics.WSConnections))
	assert.Equal(t, 1, r.Connections(1))

	r.Push(1, Event{Type: EventNotification})
	assert.Empty(t, first.got)
	assert.Len(t, second.got, 1)

	unregister()
	assert.Equal(t, base, testutil.ToFloat64(metrics.WSConnections))
	assert.Zero(t, r.Connections(1))
}
