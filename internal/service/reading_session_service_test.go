package service

import (
	"context"
	"testing"
	"time"

	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/reading"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var host = gateway.Actor{ID: "user-host"}

func TestCreateSession(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()

	t.Run("host with profile is recorded", func(t *testing.T) {
		require.NoError(t, f.profiles.Ensure(ctx, host.ID, "Host", false))
		s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite", HostUserID: &host.ID})
		require.NoError(t, err)

		assert.Equal(t, reading.StepSetup, s.ReadingStep)
		assert.Empty(t, s.SelectedCards)
		assert.Equal(t, 1.0, s.ZoomLevel)
		assert.True(t, s.IsActive)
		require.NotNil(t, s.HostUserID)
		assert.Equal(t, host.ID, *s.HostUserID)

		got, err := f.sessions.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.True(t, s.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("host without profile is kept", func(t *testing.T) {
		stranger := "guest-nobody"
		s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "thoth", HostUserID: &stranger})
		require.NoError(t, err)
		require.NotNil(t, s.HostUserID)
		assert.Equal(t, stranger, *s.HostUserID)

		got, err := f.sessions.Get(ctx, s.ID)
		require.NoError(t, err)
		require.NotNil(t, got.HostUserID)
		assert.Equal(t, stranger, *got.HostUserID)
	})

	t.Run("deck is required", func(t *testing.T) {
		_, err := f.sessions.Create(ctx, gateway.NewSession{})
		assert.ErrorIs(t, err, gateway.ErrInvalid)
	})

	assert.Contains(t, f.publisher.Types(), "SESSION_CREATED")
}

func TestGetSessionNotFound(t *testing.T) {
	f := newReadingFixture(t, true)

	_, err := f.sessions.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	_, err = f.sessions.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestUpdateWritesOnlyPresentFields(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()

	s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
	require.NoError(t, err)

	_, err = f.sessions.Update(ctx, s.ID, host, reading.Patch{
		SelectedLayout: reading.Some(reading.StringPtr("three-card")),
		Question:       reading.Some("Where is this going?"),
		LoadingStates:  reading.Some(&reading.LoadingStates{IsShuffling: true, TriggeredBy: host.ID}),
	})
	require.NoError(t, err)

	_, err = f.sessions.Update(ctx, s.ID, host, reading.Patch{ZoomLevel: reading.Some(2.0)})
	require.NoError(t, err)

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.ZoomLevel)
	assert.Equal(t, "Where is this going?", got.Question)
	require.NotNil(t, got.SelectedLayout)
	assert.Equal(t, "three-card", *got.SelectedLayout)
	require.NotNil(t, got.LoadingStates)
	assert.True(t, got.LoadingStates.IsShuffling)

	_, err = f.sessions.Update(ctx, s.ID, host, reading.Patch{LoadingStates: reading.Some[*reading.LoadingStates](nil)})
	require.NoError(t, err)
	got, err = f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LoadingStates)
	assert.Equal(t, "Where is this going?", got.Question)
}

func TestUpdateTimestampStrictlyIncreases(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()

	s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
	require.NoError(t, err)

	prev := s.UpdatedAt
	for i := 0; i < 3; i++ {
		// The fake clock never moves, so the server has to bump the timestamp itself.
		got, err := f.sessions.Update(ctx, s.ID, host, reading.Patch{Question: reading.Some("q")})
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.After(prev), "update %d did not advance updated_at", i)
		prev = got.UpdatedAt
	}
}

func TestUpdateValidation(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()

	s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
	require.NoError(t, err)
	_, err = f.sessions.Update(ctx, s.ID, host, reading.Patch{SelectedLayout: reading.Some(reading.StringPtr("single-card"))})
	require.NoError(t, err)

	card := reading.SelectedCard{CardID: "the-moon", Position: "present"}
	_, err = f.sessions.Update(ctx, s.ID, host, reading.Patch{SelectedCards: reading.Some([]reading.SelectedCard{card, card})})
	assert.ErrorIs(t, err, gateway.ErrInvalid)

	_, err = f.sessions.Update(ctx, s.ID, host, reading.Patch{ReadingStep: reading.Some(reading.ReadingStep("done"))})
	assert.ErrorIs(t, err, gateway.ErrInvalid)

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SelectedCards)
}

func TestGuestWritePolicy(t *testing.T) {
	guest := gateway.Actor{ID: "guest-abc", Anonymous: true}
	ctx := context.Background()

	t.Run("enabled lets non-host guests write", func(t *testing.T) {
		f := newReadingFixture(t, true)
		s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
		require.NoError(t, err)

		got, err := f.sessions.Update(ctx, s.ID, guest, reading.Patch{Question: reading.Some("from a guest")})
		require.NoError(t, err)
		assert.Equal(t, "from a guest", got.Question)
	})

	t.Run("disabled denies guests", func(t *testing.T) {
		f := newReadingFixture(t, false)
		s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
		require.NoError(t, err)

		_, err = f.sessions.Update(ctx, s.ID, guest, reading.Patch{Question: reading.Some("nope")})
		assert.ErrorIs(t, err, gateway.ErrPermissionDenied)

		_, err = f.sessions.Update(ctx, s.ID, host, reading.Patch{Question: reading.Some("fine")})
		assert.NoError(t, err)
	})
}

func TestUpdateBroadcastsCommittedRow(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite"})
	require.NoError(t, err)

	events, err := f.broadcaster.Subscribe(ctx, s.ID)
	require.NoError(t, err)

	committed, err := f.sessions.Update(ctx, s.ID, host, reading.Patch{Interpretation: reading.Some("The Tower: upheaval")})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, reading.TableSessions, ev.Table)
		assert.Equal(t, reading.ChangeUpdate, ev.Type)
		require.NotNil(t, ev.Session)
		assert.Equal(t, "The Tower: upheaval", ev.Session.Interpretation)
		assert.True(t, committed.UpdatedAt.Equal(ev.Session.UpdatedAt))
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	f := newReadingFixture(t, true)
	_, err := f.sessions.Update(context.Background(), uuid.NewString(), host, reading.Patch{Question: reading.Some("?")})
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}
