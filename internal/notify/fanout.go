package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/queueease/internal/logging"
)

// FanoutChannel is the Redis pub/sub channel shared by all instances.
const FanoutChannel = "queue:push"

type envelope struct {
	UserID uint64 `json:"user_id,omitempty"`
	All    bool   `json:"all,omitempty"`
	Event  Event  `json:"event"`
}

// RedisFanout is a Pusher for multi-instance deployments.  Pushes are
// published to Redis; Serve subscribes and hands every envelope to the
// local Registry, so each instance reaches its own connections.
type RedisFanout struct {
	rdb     *redis.Client
	local   *Registry
	channel string
	timeout time.Duration
	log     zerolog.Logger
}

func NewRedisFanout(rdb *redis.Client, local *Registry) *RedisFanout {
	return &RedisFanout{
		rdb:     rdb,
		local:   local,
		channel: FanoutChannel,
		timeout: 2 * time.Second,
		log:     logging.Component("fanout"),
	}
}

func (f *RedisFanout) Push(userID uint64, ev Event) {
	f.publish(envelope{UserID: userID, Event: ev})
}

func (f *RedisFanout) PushAll(ev Event) {
	f.publish(envelope{All: true, Event: ev})
}

func (f *RedisFanout) publish(env envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		f.log.Error().Err(err).Msg("marshal envelope")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.rdb.Publish(ctx, f.channel, string(body)).Err(); err != nil {
		// Redis is down: this instance's clients still get the event.
		f.log.Warn().Err(err).Msg("publish failed, delivering locally")
		f.deliver(env)
	}
}

// Serve relays envelopes from Redis to the local registry until ctx ends.
func (f *RedisFanout) Serve(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, f.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}
	f.log.Info().Str("channel", f.channel).Msg("fanout subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("fanout subscription closed")
			}
			if err := f.handle([]byte(msg.Payload)); err != nil {
				f.log.Warn().Err(err).Msg("drop malformed envelope")
			}
		}
	}
}

func (f *RedisFanout) handle(payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	f.deliver(env)
	return nil
}

func (f *RedisFanout) deliver(env envelope) {
	if env.All {
		f.local.PushAll(env.Event)
		return
	}
	f.local.Push(env.UserID, env.Event)
}
