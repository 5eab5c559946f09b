package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/logger"
)

// RedisPublisher publishes events on a Redis channel so every instance's hub
// receives them, not just the one that handled the request.
type RedisPublisher struct {
	rdb     *database.Redis
	channel string
}

// NewRedisPublisher creates a RedisPublisher
func NewRedisPublisher(rdb *database.Redis, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, e *Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := p.rdb.PublishJSON(ctx, p.channel, e); err != nil {
		return fmt.Errorf("failed to publish realtime event: %w", err)
	}
	return nil
}

// Relay forwards events from a Redis channel into a local publisher,
// normally the Hub. It returns when ctx is done.
func Relay(ctx context.Context, rdb *database.Redis, channel string, to Publisher, log *logger.Logger) error {
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	log = log.WithComponent("realtime_relay")
	log.Info().Str("channel", channel).Msg("relaying realtime events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal realtime event")
				continue
			}
			if err := to.Publish(ctx, &e); err != nil {
				log.Warn().Err(err).Msg("failed to forward realtime event")
			}
		}
	}
}
