package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"farm-ledger/internal/core"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultChannel is the Pub/Sub channel change events are published on.
	DefaultChannel = "farm-ledger:changes"

	defaultPublishTimeout = 2 * time.Second
)

// RedisPublisher publishes change events as JSON on a Redis Pub/Sub channel.
type RedisPublisher struct {
	client         *redis.Client
	ownsClient     bool
	channel        string
	publishTimeout time.Duration
	logger         *zap.Logger
}

// RedisPublisherOption configures a RedisPublisher.
type RedisPublisherOption func(*RedisPublisher)

// WithChannel sets the Pub/Sub channel name.
func WithChannel(channel string) RedisPublisherOption {
	return func(p *RedisPublisher) {
		if channel != "" {
			p.channel = channel
		}
	}
}

// WithPublishTimeout bounds each PUBLISH call.
func WithPublishTimeout(d time.Duration) RedisPublisherOption {
	return func(p *RedisPublisher) {
		if d > 0 {
			p.publishTimeout = d
		}
	}
}

func WithRedisLogger(logger *zap.Logger) RedisPublisherOption {
	return func(p *RedisPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewRedisPublisherFromURL connects to the redis:// URL and checks the connection.
// The publisher owns the client and closes it in Close.
func NewRedisPublisherFromURL(ctx context.Context, url string, opts ...RedisPublisherOption) (*RedisPublisher, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	p := NewRedisPublisher(client, opts...)
	p.ownsClient = true
	return p, nil
}

// NewRedisPublisher wraps an existing client. The caller keeps ownership of it.
func NewRedisPublisher(client *redis.Client, opts ...RedisPublisherOption) *RedisPublisher {
	p := &RedisPublisher{
		client:         client,
		channel:        DefaultChannel,
		publishTimeout: defaultPublishTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends one event and reports failures to the caller.
func (p *RedisPublisher) Publish(ctx context.Context, ev core.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// NotifyChange implements core.ChangeNotifier. The write is already committed, so a
// publish failure is logged and not returned.
func (p *RedisPublisher) NotifyChange(ctx context.Context, ev core.ChangeEvent) {
	// Detach from the caller so a request deadline does not cancel the publish.
	if err := p.Publish(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Error("Failed to publish change event",
			zap.String("channel", p.channel),
			zap.String("entity", ev.Entity),
			zap.String("id", ev.ID),
			zap.Error(err))
		return
	}
	p.logger.Debug("Published change event",
		zap.String("entity", ev.Entity),
		zap.String("kind", ev.Kind),
		zap.String("id", ev.ID))
}

// Subscribe blocks, calling fn for each event received on the channel until ctx is
// done. Undecodable payloads are logged and skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, fn func(core.ChangeEvent)) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	p.logger.Info("Subscribed to change channel", zap.String("channel", p.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev core.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.Error("Failed to unmarshal change event",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			fn(ev)
		}
	}
}

// Close releases the client if the publisher created it.
func (p *RedisPublisher) Close() error {
	if p.ownsClient {
		return p.client.Close()
	}
	return nil
}

var _ core.ChangeNotifier = (*RedisPublisher)(nil)
