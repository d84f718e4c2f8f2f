package broker

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/queueease/internal/config"
	"github.com/iliyamo/queueease/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Output: io.Discard})
	os.Exit(m.Run())
}

type fakeSession struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (s *fakeSession) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("expected durable queue")
	}
	s.declared = append(s.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (s *fakeSession) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	s.keys = append(s.keys, key)
	s.published = append(s.published, msg)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func brokerConfig() config.BrokerConfig {
	return config.BrokerConfig{URL: "amqp://test/", Queue: "queue.events", BreakerFailures: 2, BreakerTimeout: time.Minute}
}

func TestPublisher_PublishesPersistentJSON(t *testing.T) {
	sess := &fakeSession{}
	dials := 0
	p := NewPublisher(brokerConfig(), func(url string) (Session, error) {
		dials++
		assert.Equal(t, "amqp://test/", url)
		return sess, nil
	})

	ev := NewEvent(EventTicketJoined)
	ev.TicketID, ev.OwnerID, ev.Position = 3, 7, 2
	require.NoError(t, p.Publish(context.Background(), ev))
	require.NoError(t, p.Publish(context.Background(), NewEvent(EventNotifyNext)))

	assert.Equal(t, 1, dials, "session is reused")
	assert.Equal(t, []string{"queue.events"}, sess.declared)
	assert.Equal(t, []string{"queue.events", "queue.events"}, sess.keys)
	require.Len(t, sess.published, 2)
	msg := sess.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, ev.EventID, msg.MessageId)

	var got TicketEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, uint64(3), got.TicketID)
	assert.Equal(t, EventTicketJoined, got.Type)

	require.NoError(t, p.Close())
	assert.True(t, sess.closed)
}

func TestPublisher_RedialsAfterFailure(t *testing.T) {
	first := &fakeSession{publishErr: errors.New("channel closed")}
	second := &fakeSession{}
	sessions := []*fakeSession{first, second}
	p := NewPublisher(brokerConfig(), func(string) (Session, error) {
		s := sessions[0]
		sessions = sessions[1:]
		return s, nil
	})

	assert.Error(t, p.Publish(context.Background(), NewEvent(EventTicketJoined)))
	assert.True(t, first.closed)
	require.NoError(t, p.Publish(context.Background(), NewEvent(EventTicketJoined)))
	assert.Len(t, second.published, 1)
}

func TestPublisher_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	dials := 0
	p := NewPublisher(brokerConfig(), func(string) (Session, error) {
		dials++
		return nil, errors.New("connection refused")
	})

	for i := 0; i < 2; i++ {
		assert.Error(t, p.Publish(context.Background(), NewEvent(EventTicketJoined)))
	}
	err := p.Publish(context.Background(), NewEvent(EventTicketJoined))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, dials, "open breaker short-circuits the dial")
}
