package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChannel is the pub/sub channel all instances share.
const RedisChannel = "blitz:tournaments"

// Redis is a Bus over Redis pub/sub.
type Redis struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger, done: make(chan struct{})}
}

// DialRedis parses url and pings the server.
func DialRedis(ctx context.Context, url string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, logger), nil
}

// Publish encodes msg and publishes it on RedisChannel.
func (r *Redis) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}
	if err := r.client.Publish(ctx, RedisChannel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe waits for the subscription confirmation and then consumes the
// channel on its own goroutine until Close.
func (r *Redis) Subscribe(ctx context.Context, h Handler) error {
	ps := r.client.Subscribe(ctx, RedisChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	r.mu.Lock()
	r.pubsub = ps
	r.mu.Unlock()

	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-r.done:
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					r.logger.Warn("dropping malformed bus message", zap.Error(err))
					continue
				}
				h(msg)
			}
		}
	}()
	return nil
}

// Close stops the subscriber and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	return r.client.Close()
}
