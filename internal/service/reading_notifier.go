package service

import (
	"context"
	"time"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/events"
	"tarot-room-be/pkg/reading"
)

// Clock returns commit timestamps. Rows store microseconds, so the clock
// does too.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// nextUpdatedAt keeps updated_at strictly increasing even when the wall
// clock stalls or steps back.
func nextUpdatedAt(now, prev time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

// notifier fans committed changes out. Delivery failures are logged and
// never undo a commit.
type notifier struct {
	broadcaster broadcast.Broadcaster
	publisher   events.Publisher
	logger      logger.ILogger
}

func (n notifier) change(ctx context.Context, ev reading.ChangeEvent) {
	if n.broadcaster == nil {
		return
	}
	if err := n.broadcaster.Publish(ctx, ev); err != nil {
		n.logger.Error("READING", "Broadcast failed", map[string]interface{}{
			"session_id": ev.SessionID,
			"table":      ev.Table,
			"error":      err.Error(),
		})
	}
}

func (n notifier) event(ctx context.Context, ev events.Event) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, ev); err != nil {
		n.logger.Warn("READING", "Lifecycle event not published", map[string]interface{}{
			"type":  ev.EventType(),
			"error": err.Error(),
		})
	}
}
