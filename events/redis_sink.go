package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/snowcast/logger"
)

// DefaultRedisChannel is the pub/sub channel events are published on.
const DefaultRedisChannel = "snowcast:events"

// RedisPublisher is the subset of *redis.Client used by RedisSink.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes events as JSON on a Redis pub/sub channel. Call Run on
// its own goroutine; Publish only enqueues.
type RedisSink struct {
	*worker
	client  RedisPublisher
	channel string
}

// NewRedisSink creates a RedisSink.
//
// Parameters:
//   - client: A go-redis client or anything with the same Publish method
//   - channel: Pub/sub channel name; DefaultRedisChannel when empty
//   - buffer: Queue length; DefaultBuffer when not positive
//   - log: Logger for delivery failures
//
// Returns:
//   - The sink
func NewRedisSink(client RedisPublisher, channel string, buffer int, log logger.Logger) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}

	s := &RedisSink{client: client, channel: channel}
	s.worker = newWorker("redis", buffer, s.deliver, log)
	return s
}

// NewRedisClient builds a go-redis client for addr and checks it with PING.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return client, nil
}

// Channel returns the pub/sub channel name.
func (s *RedisSink) Channel() string { return s.channel }

func (s *RedisSink) deliver(ctx context.Context, ev Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return err
	}

	return s.client.Publish(ctx, s.channel, payload).Err()
}
