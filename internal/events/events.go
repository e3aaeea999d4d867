// Package events relays listing lifecycle events over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Cedctf/foodbridge-sub000/internal/models"
)

// Channel is the pub/sub channel for listing events of app.
func Channel(app string) string {
	if app == "" {
		app = "foodbridge"
	}
	return app + ":listing-events"
}

// Publisher publishes listing events on a Redis channel.
type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, event models.ListingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal listing event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish listing event: %w", err)
	}
	return nil
}

// ISubscriber streams listing events until ctx is done.
type ISubscriber interface {
	Subscribe(ctx context.Context) (<-chan models.ListingEvent, error)
}

// Subscriber reads listing events from a Redis channel.
type Subscriber struct {
	rdb     *redis.Client
	channel string
}

func NewSubscriber(rdb *redis.Client, channel string) *Subscriber {
	return &Subscriber{rdb: rdb, channel: channel}
}

// Subscribe returns a channel of decoded events. It is closed when ctx is
// cancelled or the Redis subscription ends. Malformed messages are skipped.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan models.ListingEvent, error) {
	sub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	out := make(chan models.ListingEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.ListingEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.Warn("dropping malformed listing event", "channel", s.channel, "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
