// Package pubsub provides change notification channels used to drive live queries.
//
// A Feed carries no payload: subscribers are told that something under a topic
// changed and re-read whatever state they care about.
package pubsub

import "context"

// Feed publishes and delivers change signals per topic.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string, fn func()) (unsubscribe func(), err error)
	Close() error
}
