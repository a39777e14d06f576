package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hris-leave-api/pkg/response"
)

const defaultStreamHeartbeat = 25 * time.Second

type subscribeFunc[T any] func(ctx context.Context, push func(T)) (func(), error)

// streamSnapshots relays every pushed snapshot as a server-sent "snapshot" event
// until the client goes away. Only the latest unsent snapshot is kept.
func streamSnapshots[T any](c *gin.Context, heartbeat time.Duration, subscribe subscribeFunc[T]) {
	if heartbeat <= 0 {
		heartbeat = defaultStreamHeartbeat
	}
	ctx := c.Request.Context()
	updates := make(chan T, 1)
	push := func(value T) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- value:
		default:
		}
	}

	unsubscribe, err := subscribe(ctx, push)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case value := <-updates:
			c.SSEvent("snapshot", value)
			c.Writer.Flush()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case value := <-updates:
			c.SSEvent("snapshot", value)
		case now := <-ticker.C:
			c.SSEvent("heartbeat", now.UTC().Format(time.RFC3339))
		}
		c.Writer.Flush()
	}
}
