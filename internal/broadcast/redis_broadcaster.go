package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/reading"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "reading:"

// RedisBroadcaster publishes every change on a per-session Redis channel and
// forwards what it hears into a LocalBroadcaster, so subscribers on any API
// instance see writes made on any other.
type RedisBroadcaster struct {
	rdb    *redis.Client
	local  *LocalBroadcaster
	logger logger.ILogger
	cancel context.CancelFunc
}

// NewRedisBroadcaster starts the forwarder and returns once the pattern
// subscription is live.
func NewRedisBroadcaster(rdb *redis.Client, log logger.ILogger) (*RedisBroadcaster, error) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBroadcaster{
		rdb:    rdb,
		local:  NewLocalBroadcaster(log),
		logger: log,
		cancel: cancel,
	}
	if err := b.startForwarder(ctx); err != nil {
		cancel()
		return nil, err
	}
	return b, nil
}

func (b *RedisBroadcaster) startForwarder(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev reading.ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.logger.Warn("BROADCAST", "Bad redis change payload", map[string]interface{}{
						"channel": m.Channel,
						"error":   err.Error(),
					})
					continue
				}
				if ev.SessionID == "" {
					ev.SessionID = strings.TrimPrefix(m.Channel, redisChannelPrefix)
				}
				if err := b.local.Publish(ctx, ev); err != nil {
					b.logger.Error("BROADCAST", "Forwarding change failed", map[string]interface{}{
						"session_id": ev.SessionID,
						"error":      err.Error(),
					})
				}
			}
		}
	}()
	return nil
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev reading.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := b.rdb.Publish(ctx, redisChannelPrefix+ev.SessionID, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan reading.ChangeEvent, error) {
	return b.local.Subscribe(ctx, sessionID)
}

func (b *RedisBroadcaster) Close() error {
	b.cancel()
	return b.local.Close()
}
