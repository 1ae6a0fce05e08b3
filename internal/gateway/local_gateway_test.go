package gateway

import (
	"context"
	"testing"
	"time"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/internal/service"
	"tarot-room-be/pkg/database"
	"tarot-room-be/pkg/events"
	contract "tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/reading"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalGateway(t *testing.T) *LocalGateway {
	t.Helper()

	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	log := logger.NewNop()
	uow := unitofwork.NewRepositoryFactory(db)
	bc := broadcast.NewLocalBroadcaster(log)
	t.Cleanup(func() { _ = bc.Close() })
	pub := events.NopPublisher{}

	return NewLocalGateway(
		service.NewReadingSessionService(uow, bc, pub, service.ReadingSessionConfig{GuestWritesEnabled: true}, nil, log),
		service.NewParticipantService(uow, bc, pub, nil, log),
		service.NewProfileService(uow, nil, log),
		service.NewMigrationService(uow, bc, pub, nil, log),
		bc,
	)
}

func next(t *testing.T, sub contract.Subscription) reading.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
		return reading.ChangeEvent{}
	}
}

func TestLocalGatewayStreamsCommittedChanges(t *testing.T) {
	gw := newLocalGateway(t)
	ctx := context.Background()

	s, err := gw.InsertSession(ctx, contract.NewSession{DeckID: "rider-waite"})
	require.NoError(t, err)

	sub, err := gw.Subscribe(ctx, s.ID)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, contract.StatusSubscribed, sub.Status())

	guest := "guest-abc"
	p, err := gw.InsertParticipant(ctx, contract.NewParticipant{SessionID: s.ID, AnonymousID: &guest})
	require.NoError(t, err)

	ev := next(t, sub)
	assert.Equal(t, reading.TableParticipants, ev.Table)
	assert.Equal(t, reading.ChangeInsert, ev.Type)
	require.NotNil(t, ev.Participant)
	assert.Equal(t, p.ID, ev.Participant.ID)

	question := "What should I focus on?"
	updated, err := gw.UpdateSession(ctx, s.ID, contract.Actor{ID: guest, Anonymous: true},
		reading.Patch{Question: reading.Some(question)})
	require.NoError(t, err)

	ev = next(t, sub)
	assert.Equal(t, reading.TableSessions, ev.Table)
	require.NotNil(t, ev.Session)
	assert.Equal(t, question, ev.Session.Question)
	assert.True(t, updated.UpdatedAt.Equal(ev.Session.UpdatedAt))
}

func TestLocalGatewayCloseEndsFeed(t *testing.T) {
	gw := newLocalGateway(t)
	ctx := context.Background()

	s, err := gw.InsertSession(ctx, contract.NewSession{DeckID: "thoth"})
	require.NoError(t, err)
	sub, err := gw.Subscribe(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.Equal(t, contract.StatusClosed, sub.Status())
	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after the consumer left must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		question := "still here?"
		_, _ = gw.UpdateSession(ctx, s.ID, contract.Actor{ID: "guest-x", Anonymous: true},
			reading.Patch{Question: reading.Some(question)})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update blocked on a closed subscription")
	}
}

func TestLocalGatewayMapsUnknownSession(t *testing.T) {
	gw := newLocalGateway(t)
	_, err := gw.GetSession(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, contract.ErrNotFound)
	assert.False(t, contract.IsTransient(err))
}
