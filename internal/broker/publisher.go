package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/queueease/internal/config"
	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/metrics"
)

// Session is the slice of an AMQP channel the publisher needs.
type Session interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a Session against the broker at url.
type Dialer func(url string) (Session, error)

// DialAMQP is the production Dialer.
func DialAMQP(url string) (Session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &amqpSession{Channel: ch, conn: conn}, nil
}

type amqpSession struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (s *amqpSession) Close() error {
	_ = s.Channel.Close()
	return s.conn.Close()
}

// Publisher sends TicketEvents to a durable queue.  The session is opened
// lazily and reopened after a failure; a circuit breaker stops hammering a
// broker that keeps failing.
type Publisher struct {
	url     string
	queue   string
	dial    Dialer
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     zerolog.Logger

	mu      sync.Mutex
	session Session
}

// NewPublisher builds a Publisher.  dial may be nil for DialAMQP.
func NewPublisher(cfg config.BrokerConfig, dial Dialer) *Publisher {
	if dial == nil {
		dial = DialAMQP
	}
	p := &Publisher{
		url:   cfg.URL,
		queue: cfg.Queue,
		dial:  dial,
		log:   logging.Component("broker.publisher"),
	}
	threshold := cfg.BreakerFailures
	if threshold == 0 {
		threshold = 5
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "broker",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			p.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues("broker").Set(0)
	return p
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev TicketEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.BrokerPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.send(ctx, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Type:         ev.Type,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.BrokerPublishes.WithLabelValues("rejected").Inc()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	case err != nil:
		metrics.BrokerPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	metrics.BrokerPublishes.WithLabelValues("ok").Inc()
	return nil
}

func (p *Publisher) send(ctx context.Context, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		s, err := p.dial(p.url)
		if err != nil {
			return err
		}
		if _, err := s.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			_ = s.Close()
			return fmt.Errorf("declare %s: %w", p.queue, err)
		}
		p.session = s
	}
	if err := p.session.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		_ = p.session.Close()
		p.session = nil
		return err
	}
	return nil
}

// Close releases the open session, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}
