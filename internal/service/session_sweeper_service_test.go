package service

import (
	"context"
	"testing"
	"time"

	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/events"
	"tarot-room-be/pkg/gateway"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepDeactivatesIdleSessionsOnly(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()
	sweeper := NewSessionSweeperService(f.uow, f.broadcaster, f.publisher, time.Hour, time.Minute, f.clock.Now, logger.NewNop())

	idle, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
	require.NoError(t, err)
	busy, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "thoth"})
	require.NoError(t, err)
	user := "user-1"
	p, err := f.participants.Insert(ctx, gateway.NewParticipant{SessionID: busy.ID, UserID: &user})
	require.NoError(t, err)

	f.clock.Advance(50 * time.Minute)
	require.NoError(t, f.participants.Touch(ctx, p.ID))
	f.clock.Advance(20 * time.Minute)

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.sessions.Get(ctx, idle.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.UpdatedAt.After(idle.UpdatedAt))

	got, err = f.sessions.Get(ctx, busy.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = f.participants.Insert(ctx, gateway.NewParticipant{SessionID: idle.ID, UserID: &user})
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	assert.Contains(t, f.publisher.Types(), events.SessionDeactivated)
}

func TestActivityServiceSweepsOnDeparture(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()
	sweeper := NewSessionSweeperService(f.uow, f.broadcaster, f.publisher, time.Hour, time.Minute, f.clock.Now, logger.NewNop())
	activity := NewActivityService(nil, sweeper, logger.NewNop())

	s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	require.NoError(t, activity.HandleEvent(ctx, events.NewParticipantLeft(s.ID, uuid.NewString(), f.clock.Now())))
	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.NoError(t, activity.HandleEvent(ctx, events.NewSessionCreated("not-a-uuid", nil, f.clock.Now())))
	assert.NoError(t, activity.HandleEvent(ctx, events.NewParticipantLeft("not-a-uuid", "p", f.clock.Now())))
}
