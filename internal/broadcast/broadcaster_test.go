package broadcast

import (
	"context"
	"testing"
	"time"

	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/reading"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan reading.ChangeEvent) reading.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return reading.ChangeEvent{}
}

func sessionEvent(id, question string) reading.ChangeEvent {
	s := reading.NewSession(id, "rider-waite", nil, time.Now().UTC())
	s.Question = question
	return reading.SessionChanged(s)
}

func TestLocalBroadcasterDeliversInOrderPerSession(t *testing.T) {
	b := NewLocalBroadcaster(logger.NewNop())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := b.Subscribe(ctx, "s1")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "s2")
	require.NoError(t, err)

	for _, q := range []string{"one", "two", "three"} {
		require.NoError(t, b.Publish(ctx, sessionEvent("s1", q)))
	}

	assert.Equal(t, "one", receive(t, a).Session.Question)
	assert.Equal(t, "two", receive(t, a).Session.Question)
	assert.Equal(t, "three", receive(t, a).Session.Question)

	select {
	case ev := <-other:
		t.Fatalf("unexpected event for other session: %+v", ev)
	default:
	}
}

func TestLocalBroadcasterClosesOnCancel(t *testing.T) {
	b := NewLocalBroadcaster(logger.NewNop())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "s1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed")
	}
}

func TestRedisBroadcasterFansOutAcrossInstances(t *testing.T) {
	s := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { c.Close() })
		return c
	}

	writer, err := NewRedisBroadcaster(newClient(), logger.NewNop())
	require.NoError(t, err)
	defer writer.Close()
	reader, err := NewRedisBroadcaster(newClient(), logger.NewNop())
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote, err := reader.Subscribe(ctx, "s1")
	require.NoError(t, err)
	own, err := writer.Subscribe(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, writer.Publish(ctx, sessionEvent("s1", "across")))

	assert.Equal(t, "across", receive(t, remote).Session.Question)
	assert.Equal(t, "across", receive(t, own).Session.Question)
}
