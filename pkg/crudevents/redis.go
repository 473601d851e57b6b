package crudevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/crud"
	"github.com/bitechdev/autoquery/pkg/logger"
)

// RedisPublisher appends committed events to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	owned  bool
}

// NewRedisPublisher publishes through an existing client. The caller keeps
// ownership of client.
func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = "autoquery:crud_events"
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisPublisherFromConfig connects to the configured server and checks
// that it answers.
func NewRedisPublisherFromConfig(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	p := NewRedisPublisher(client, cfg.StreamName, cfg.MaxLen)
	p.owned = true
	logger.Info("Redis publisher initialized (stream: %s, max_len: %d)", p.stream, p.maxLen)
	return p, nil
}

// Stream returns the stream name.
func (p *RedisPublisher) Stream() string { return p.stream }

// Publish implements crud.Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, ev *crud.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: map[string]interface{}{
			"event":        data,
			"id":           ev.ID,
			"event_type":   string(ev.EventType),
			"model":        ev.Model,
			"request_type": ev.RequestType,
			"ref_id":       ev.RefID,
		},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add event to stream: %w", err)
	}
	return nil
}

// ReadAll returns every event in the stream, oldest first.
func (p *RedisPublisher) ReadAll(ctx context.Context) ([]*crud.Event, error) {
	messages, err := p.client.XRange(ctx, p.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	events := make([]*crud.Event, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["event"].(string)
		if !ok {
			continue
		}
		var ev crud.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s: %w", msg.ID, err)
		}
		events = append(events, &ev)
	}
	return events, nil
}

// Close closes the client when the publisher opened it.
func (p *RedisPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.client.Close()
}
