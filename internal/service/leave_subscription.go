package service

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// changeFeed is the subset of pubsub.Feed the services rely on.
type changeFeed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string, fn func()) (func(), error)
}

func employeeRequestsTopic(employeeID string) string {
	return "leave:requests:employee:" + employeeID
}

func approverRequestsTopic(approverID string) string {
	return "leave:requests:approver:" + approverID
}

func approverAssignmentTopic(employeeID string) string {
	return "leave:approvers:" + employeeID
}

func notificationsTopic(userID string) string {
	return "notifications:" + userID
}

// subscribeQuery keeps push fed with the latest result of load. The first
// result is pushed before returning. A signal on topic only marks the query
// dirty; reloads run on the subscription's own goroutine, one at a time, and
// signals that arrive during a reload collapse into a single follow-up reload.
// push may call the returned function. A push already running when the
// subscription stops is allowed to finish; no reload starts after that.
func subscribeQuery[T any](ctx context.Context, feed changeFeed, topic string, load func(context.Context) (T, error), push func(T), logger *zap.Logger) (func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var stopped atomic.Bool
	dirty := make(chan struct{}, 1)
	quit := make(chan struct{})

	refresh := func() error {
		if stopped.Load() {
			return nil
		}
		value, err := load(ctx)
		if err != nil {
			return err
		}
		if stopped.Load() {
			return nil
		}
		push(value)
		return nil
	}

	var feedUnsubscribe func()
	if feed != nil {
		unsubscribe, err := feed.Subscribe(ctx, topic, func() {
			select {
			case dirty <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return nil, err
		}
		feedUnsubscribe = unsubscribe
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			stopped.Store(true)
			close(quit)
			if feedUnsubscribe != nil {
				feedUnsubscribe()
			}
		})
	}

	if err := refresh(); err != nil {
		stop()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-quit:
				return
			case <-dirty:
				if err := refresh(); err != nil {
					logger.Warn("live query refresh failed", zap.String("topic", topic), zap.Error(err))
				}
			}
		}
	}()

	stopAfter := context.AfterFunc(ctx, stop)
	return func() {
		stopAfter()
		stop()
	}, nil
}

// publishChange signals topic and logs failures; a failed signal never fails the write.
func publishChange(ctx context.Context, feed changeFeed, logger *zap.Logger, topics ...string) {
	if feed == nil {
		return
	}
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if err := feed.Publish(ctx, topic); err != nil {
			logger.Warn("change feed publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}
