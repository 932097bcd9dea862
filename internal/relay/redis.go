package relay

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackplane shares rooms between relay instances through Redis pub/sub,
// one channel per room.
type RedisBackplane struct {
	client *redis.Client
	prefix string
}

// NewRedisBackplane connects to addr and verifies the connection.
func NewRedisBackplane(ctx context.Context, addr string) (*RedisBackplane, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisBackplane{client: client, prefix: "mhk:room:"}, nil
}

func (b *RedisBackplane) channel(room string) string {
	return b.prefix + room
}

// Publish implements Backplane.
func (b *RedisBackplane) Publish(ctx context.Context, room string, data []byte) error {
	if err := b.client.Publish(ctx, b.channel(room), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", room, err)
	}
	return nil
}

// Subscribe implements Backplane.
func (b *RedisBackplane) Subscribe(ctx context.Context, room string, deliver func(data []byte)) (func() error, error) {
	sub := b.client.Subscribe(ctx, b.channel(room))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", room, err)
	}

	ch := sub.Channel()
	go func() {
		for msg := range ch {
			deliver([]byte(msg.Payload))
		}
	}()
	return sub.Close, nil
}

// Close releases the Redis connection pool.
func (b *RedisBackplane) Close() error {
	return b.client.Close()
}
