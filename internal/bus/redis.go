package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// envelope is the wire format on the shared redis channel.
type envelope struct {
	Origin string `json:"origin"`
	Topic  string `json:"topic"`
	Event  Event  `json:"event"`
}

// RedisRelay shares events between service instances. Publish forwards a
// locally produced event to redis; Run re-publishes events produced by other
// instances into the local hub. Events that originated here are ignored on
// the way back in.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	local   Publisher
	log     zerolog.Logger
}

// NewRedisRelay relays through channel, delivering foreign events to local.
func NewRedisRelay(client redis.UniversalClient, channel string, local Publisher, log zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		log:     log.With().Str("component", "redis_relay").Logger(),
	}
}

var _ Publisher = (*RedisRelay)(nil)

func (r *RedisRelay) Publish(ctx context.Context, topic string, event Event) error {
	event.Topic = topic
	payload, err := json.Marshal(envelope{Origin: r.origin, Topic: topic, Event: event})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run consumes the channel until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Msg("redis relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("redis relay shutting down")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.log.Warn().Err(err).Msg("dropping malformed relay message")
		return
	}
	if env.Origin == r.origin {
		return
	}
	if _, _, ok := SplitTopic(env.Topic); !ok {
		r.log.Warn().Str("topic", env.Topic).Msg("dropping relay message with unknown topic")
		return
	}
	if err := r.local.Publish(ctx, env.Topic, env.Event); err != nil {
		r.log.Warn().Err(err).Str("topic", env.Topic).Msg("local delivery of relayed event failed")
	}
}
