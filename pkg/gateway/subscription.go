package gateway

import (
	"sync"

	"tarot-room-be/pkg/reading"
)

type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

// Subscription delivers the change events of one session. Events is closed
// once the subscription leaves the SUBSCRIBED status.
type Subscription interface {
	Events() <-chan reading.ChangeEvent
	Status() Status
	Close() error
}

// Feed is a Subscription driven by an adapter: the adapter pushes events and
// reports the terminal status, the consumer reads.
type Feed struct {
	events  chan reading.ChangeEvent
	done    chan struct{}
	mu      sync.RWMutex
	status  Status
	onClose func()
	once    sync.Once
}

func NewFeed(buffer int, onClose func()) *Feed {
	return &Feed{
		events:  make(chan reading.ChangeEvent, buffer),
		done:    make(chan struct{}),
		status:  StatusSubscribed,
		onClose: onClose,
	}
}

func (f *Feed) Events() <-chan reading.ChangeEvent {
	return f.events
}

func (f *Feed) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Push delivers an event, blocking while the buffer is full. It reports false
// once the feed has ended.
func (f *Feed) Push(ev reading.ChangeEvent) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.status != StatusSubscribed {
		return false
	}
	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	}
}

// End moves the feed to a terminal status and closes the event channel.
func (f *Feed) End(status Status) {
	f.once.Do(func() {
		close(f.done)
		f.mu.Lock()
		f.status = status
		close(f.events)
		f.mu.Unlock()
		if f.onClose != nil {
			f.onClose()
		}
	})
}

func (f *Feed) Close() error {
	f.End(StatusClosed)
	return nil
}
