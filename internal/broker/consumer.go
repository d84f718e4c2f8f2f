package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/queueease/internal/config"
	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/metrics"
)

// AuditRecorder stores one audit row per consumed event.
type AuditRecorder interface {
	Record(ctx context.Context, actorID, ticketID uint64, action string, at time.Time) error
}

// Consumer reads TicketEvents from the events queue, writes them to the
// audit table and appends a line to <dir>/queue.log.  It implements
// suture.Service.
type Consumer struct {
	url   string
	queue string
	dir   string
	audit AuditRecorder
	log   zerolog.Logger

	fileMu sync.Mutex
}

func NewConsumer(cfg config.BrokerConfig, audit AuditRecorder) *Consumer {
	dir := cfg.AuditDir
	if dir == "" {
		dir = "logs"
	}
	return &Consumer{
		url:   cfg.URL,
		queue: cfg.Queue,
		dir:   dir,
		audit: audit,
		log:   logging.Component("broker.consumer"),
	}
}

func (c *Consumer) String() string { return "broker-consumer" }

// Serve keeps a consumer attached to the broker until ctx is done,
// reconnecting with exponential backoff.
func (c *Consumer) Serve(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set qos")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", c.queue, err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.log.Info().Str("queue", c.queue).Msg("consuming events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.Error().Err(err).Msg("handle event")
				metrics.BrokerConsumed.WithLabelValues("rejected").Inc()
				// no requeue; a poison message would spin forever
				_ = d.Nack(false, false)
				continue
			}
			metrics.BrokerConsumed.WithLabelValues("ok").Inc()
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var ev TicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	action := ev.Describe()
	if c.audit != nil {
		if err := c.audit.Record(ctx, ev.ActorID, ev.TicketID, action, at); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
	}
	return c.appendLine(fmt.Sprintf("[%s] %s | event_id=%s | ticket_id=%d | actor_id=%d | %s\n",
		at.Format(time.RFC3339), ev.Type, ev.EventID, ev.TicketID, ev.ActorID, action))
}

func (c *Consumer) appendLine(line string) error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, "queue.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
