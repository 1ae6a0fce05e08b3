// Package broadcast fans committed row changes out to every subscriber of a
// session, in-process and across API instances.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/reading"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Broadcaster interface {
	Publish(ctx context.Context, ev reading.ChangeEvent) error
	// Subscribe streams the events of one session until ctx is cancelled,
	// then closes the returned channel.
	Subscribe(ctx context.Context, sessionID string) (<-chan reading.ChangeEvent, error)
	Close() error
}

const subscriberBuffer = 64

func topic(sessionID string) string {
	return "reading.session." + sessionID
}

// LocalBroadcaster delivers events inside one process over a watermill
// gochannel. Publish returns once every current subscriber has taken the
// event, so one publisher's events arrive in order.
type LocalBroadcaster struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
}

func NewLocalBroadcaster(log logger.ILogger) *LocalBroadcaster {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            subscriberBuffer,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NopLogger{},
	)
	return &LocalBroadcaster{pubSub: pubSub, logger: log}
}

func (b *LocalBroadcaster) Publish(_ context.Context, ev reading.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubSub.Publish(topic(ev.SessionID), msg); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan reading.ChangeEvent, error) {
	messages, err := b.pubSub.Subscribe(ctx, topic(sessionID))
	if err != nil {
		return nil, err
	}

	out := make(chan reading.ChangeEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev reading.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Warn("BROADCAST", "Dropping malformed change event", map[string]interface{}{
					"session_id": sessionID,
					"error":      err.Error(),
				})
				msg.Ack()
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
			msg.Ack()
		}
	}()
	return out, nil
}

func (b *LocalBroadcaster) Close() error {
	return b.pubSub.Close()
}
