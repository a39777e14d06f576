package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const changedMessage = "changed"

// RedisFeed fans change signals across instances through Redis PUBLISH/SUBSCRIBE.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisFeed wraps a Redis client. prefix namespaces the channels.
func NewRedisFeed(client *redis.Client, prefix string, logger *zap.Logger) *RedisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{client: client, prefix: prefix, logger: logger}
}

func (f *RedisFeed) channel(topic string) string {
	return f.prefix + topic
}

// Publish announces a change on the topic.
func (f *RedisFeed) Publish(ctx context.Context, topic string) error {
	if err := f.client.Publish(ctx, f.channel(topic), changedMessage).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a dedicated Redis subscription and calls fn for every message.
func (f *RedisFeed) Subscribe(ctx context.Context, topic string, fn func()) (func(), error) {
	ps := f.client.Subscribe(ctx, f.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ps.Channel() {
			fn()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				f.logger.Warn("redis unsubscribe failed", zap.String("topic", topic), zap.Error(err))
			}
			<-done
		})
	}, nil
}

// Close is a no-op; the client lifecycle belongs to the caller.
func (f *RedisFeed) Close() error {
	return nil
}
