package readingroom

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tarot-room-be/internal/broadcast"
	localgw "tarot-room-be/internal/gateway"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/internal/service"
	"tarot-room-be/pkg/database"
	"tarot-room-be/pkg/events"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/identity"
	"tarot-room-be/pkg/reading"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// scriptedGateway wraps a real gateway, counts presence touches, can fail
// chosen calls and keeps every feed it hands out so tests can inject events.
type scriptedGateway struct {
	gateway.Gateway

	insertSessionErr error
	inactive         bool
	touches          atomic.Int32

	mu    sync.Mutex
	feeds []*gateway.Feed
}

func (g *scriptedGateway) InsertSession(ctx context.Context, in gateway.NewSession) (reading.Session, error) {
	if g.insertSessionErr != nil {
		return reading.Session{}, g.insertSessionErr
	}
	return g.Gateway.InsertSession(ctx, in)
}

func (g *scriptedGateway) GetSession(ctx context.Context, id string) (reading.Session, error) {
	s, err := g.Gateway.GetSession(ctx, id)
	if err == nil && g.inactive {
		s.IsActive = false
	}
	return s, err
}

func (g *scriptedGateway) TouchParticipant(ctx context.Context, id string) error {
	g.touches.Add(1)
	return g.Gateway.TouchParticipant(ctx, id)
}

func (g *scriptedGateway) Subscribe(ctx context.Context, sessionID string) (gateway.Subscription, error) {
	inner, err := g.Gateway.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	feed := gateway.NewFeed(64, func() { _ = inner.Close() })
	go func() {
		for ev := range inner.Events() {
			if !feed.Push(ev) {
				return
			}
		}
	}()
	g.mu.Lock()
	g.feeds = append(g.feeds, feed)
	g.mu.Unlock()
	return feed, nil
}

func (g *scriptedGateway) feedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.feeds)
}

func (g *scriptedGateway) lastFeed() *gateway.Feed {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.feeds[len(g.feeds)-1]
}

// gatedGateway holds Subscribe open until release is closed, then completes
// it even if the caller gave up in the meantime.
type gatedGateway struct {
	*scriptedGateway

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedGateway(inner *scriptedGateway) *gatedGateway {
	return &gatedGateway{scriptedGateway: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedGateway) Subscribe(ctx context.Context, sessionID string) (gateway.Subscription, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.scriptedGateway.Subscribe(context.WithoutCancel(ctx), sessionID)
}

func newGateway(t *testing.T, guestWrites bool) gateway.Gateway {
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

	return localgw.NewLocalGateway(
		service.NewReadingSessionService(uow, bc, pub, service.ReadingSessionConfig{GuestWritesEnabled: guestWrites}, nil, log),
		service.NewParticipantService(uow, bc, pub, nil, log),
		service.NewProfileService(uow, nil, log),
		service.NewMigrationService(uow, bc, pub, nil, log),
		bc,
	)
}

func newStore(t *testing.T, gw gateway.Gateway, user *identity.Identity) (*Store, *identity.Resolver) {
	t.Helper()
	auth := identity.NewStaticAuth()
	if user != nil {
		auth.Set(*user)
	}
	resolver := identity.NewResolver(identity.NewMemoryStorage(), auth, identity.Options{Profiles: gw})
	store := New(gw, resolver, Options{PresenceInterval: time.Hour, VerifyDelay: time.Millisecond})
	t.Cleanup(func() { store.LeaveSession(context.Background()) })
	return store, resolver
}

func hostUser() *identity.Identity {
	return &identity.Identity{ID: "user-host", DisplayName: "Hana"}
}

func state(t *testing.T, s *Store) reading.Session {
	t.Helper()
	st, ok := s.State()
	require.True(t, ok, "no session open")
	return st
}

func card(id, position string) reading.SelectedCard {
	return reading.SelectedCard{CardID: id, Position: position}
}

func TestCreateAndUpdateAsHost(t *testing.T) {
	gw := newGateway(t, true)
	host, _ := newStore(t, gw, hostUser())
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.NotEmpty(t, id)
	assert.Nil(t, host.Error())
	assert.False(t, host.IsLoading())
	assert.True(t, host.IsHost())
	assert.False(t, host.Degraded())
	assert.False(t, host.IsGuest())

	st := state(t, host)
	assert.Equal(t, reading.StepSetup, st.ReadingStep)
	assert.Nil(t, st.SelectedLayout)
	assert.Empty(t, st.SelectedCards)
	assert.Equal(t, reading.DefaultZoom, st.ZoomLevel)

	host.UpdateSession(ctx, reading.Patch{
		SelectedLayout: reading.Some(reading.StringPtr("three-card")),
		ReadingStep:    reading.Some(reading.StepDrawing),
	})
	require.Nil(t, host.Error())

	// Applied without waiting for the echo.
	st = state(t, host)
	assert.Equal(t, reading.StepDrawing, st.ReadingStep)
	require.NotNil(t, st.SelectedLayout)
	assert.Equal(t, "three-card", *st.SelectedLayout)

	stored, err := gw.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, reading.StepDrawing, stored.ReadingStep)
	assert.Equal(t, "D1", stored.DeckID)
	assert.True(t, stored.UpdatedAt.After(stored.CreatedAt))
}

func TestJoinIsIdempotent(t *testing.T) {
	gw := newGateway(t, true)
	host, _ := newStore(t, gw, hostUser())
	guest, resolver := newStore(t, gw, nil)
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.True(t, guest.JoinSession(ctx, id))
	first := guest.ParticipantID()
	assert.False(t, guest.IsHost())
	assert.True(t, guest.IsGuest())

	require.True(t, guest.JoinSession(ctx, id))
	assert.Equal(t, first, guest.ParticipantID())

	self, err := resolver.Current(ctx)
	require.NoError(t, err)
	rows, err := gw.ListParticipants(ctx, id)
	require.NoError(t, err)
	count := 0
	for _, p := range rows {
		if p.IdentityID() == self.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)

	require.Eventually(t, func() bool { return len(host.Participants()) == 2 }, waitFor, tick)
}

func TestJoinRejectsUnknownAndInactiveSessions(t *testing.T) {
	gw := &scriptedGateway{Gateway: newGateway(t, true)}
	host, _ := newStore(t, gw, hostUser())
	guest, _ := newStore(t, gw, nil)
	ctx := context.Background()

	assert.False(t, guest.JoinSession(ctx, uuid.NewString()))
	require.NotNil(t, guest.Error())
	assert.Equal(t, KindNotFound, guest.Error().Kind)
	assert.Equal(t, "session not found or inactive", guest.Error().Message)

	id := host.CreateSession(ctx, "D1")
	gw.inactive = true
	assert.False(t, guest.JoinSession(ctx, id))
	require.NotNil(t, guest.Error())
	assert.Equal(t, KindNotFound, guest.Error().Kind)
	_, open := guest.State()
	assert.False(t, open)
}

func TestCreateFallsBackToLocalSession(t *testing.T) {
	gw := &scriptedGateway{Gateway: newGateway(t, true), insertSessionErr: errors.New("connection refused")}
	host, _ := newStore(t, gw, hostUser())
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.NotEmpty(t, id)
	assert.Nil(t, host.Error())
	assert.True(t, host.Degraded())
	assert.True(t, host.IsHost())

	st := state(t, host)
	assert.Equal(t, id, st.ID)
	assert.Equal(t, reading.StepSetup, st.ReadingStep)
	assert.Empty(t, st.SelectedCards)
	require.NotNil(t, st.HostUserID)
	assert.Equal(t, "user-host", *st.HostUserID)

	before := st.UpdatedAt
	host.UpdateSession(ctx, reading.Patch{Question: reading.Some("Will it rain?")})
	st = state(t, host)
	assert.Equal(t, "Will it rain?", st.Question)
	assert.True(t, st.UpdatedAt.After(before))
}

func TestGuestWriteDeniedAppliesLocally(t *testing.T) {
	gw := newGateway(t, false)
	host, _ := newStore(t, gw, hostUser())
	guest, _ := newStore(t, gw, nil)
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.True(t, guest.JoinSession(ctx, id))

	guest.UpdateSession(ctx, reading.Patch{Question: reading.Some("Is this mine?")})
	assert.Nil(t, guest.Error())
	assert.Equal(t, "Is this mine?", state(t, guest).Question)

	stored, err := gw.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored.Question)
}

func TestNonHostWritesLandAndEcho(t *testing.T) {
	gw := newGateway(t, true)
	host, _ := newStore(t, gw, hostUser())
	guest, _ := newStore(t, gw, nil)
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.True(t, guest.JoinSession(ctx, id))

	guest.UpdateSession(ctx, reading.Patch{Question: reading.Some("What is next?")})
	require.Nil(t, guest.Error())

	stored, err := gw.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "What is next?", stored.Question)

	require.Eventually(t, func() bool { return state(t, guest).Question == "What is next?" }, waitFor, tick)
	require.Eventually(t, func() bool { return state(t, host).Question == "What is next?" }, waitFor, tick)
}

func TestStaleEchoKeepsGuestCards(t *testing.T) {
	gw := &scriptedGateway{Gateway: newGateway(t, true)}
	host, _ := newStore(t, gw, hostUser())
	guest, _ := newStore(t, gw, nil)
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.True(t, guest.JoinSession(ctx, id))
	feed := gw.lastFeed()

	host.UpdateSession(ctx, reading.Patch{
		SelectedLayout: reading.Some(reading.StringPtr("three-card")),
		ReadingStep:    reading.Some(reading.StepDrawing),
	})
	host.UpdateSession(ctx, reading.Patch{SelectedCards: reading.Some([]reading.SelectedCard{card("the-fool", "past")})})
	require.Nil(t, host.Error())
	require.Eventually(t, func() bool { return len(state(t, guest).SelectedCards) == 1 }, waitFor, tick)

	stale := state(t, guest)
	stale.SelectedCards = []reading.SelectedCard{}
	stale.UpdatedAt = stale.UpdatedAt.Add(-time.Second)
	stale.Question = "late echo"
	require.True(t, feed.Push(reading.SessionChanged(stale)))

	require.Eventually(t, func() bool { return state(t, guest).Question == "late echo" }, waitFor, tick)
	got := state(t, guest)
	require.Len(t, got.SelectedCards, 1)
	assert.Equal(t, "the-fool", got.SelectedCards[0].CardID)
}

func TestCapacityIsValidatedBeforeWriting(t *testing.T) {
	gw := newGateway(t, true)
	host, _ := newStore(t, gw, hostUser())
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	host.UpdateSession(ctx, reading.Patch{SelectedLayout: reading.Some(reading.StringPtr("single-card"))})
	host.UpdateSession(ctx, reading.Patch{SelectedCards: reading.Some([]reading.SelectedCard{
		card("the-fool", "1"),
		card("the-magician", "2"),
	})})

	require.NotNil(t, host.Error())
	assert.Equal(t, KindValidation, host.Error().Kind)
	assert.Empty(t, state(t, host).SelectedCards)

	stored, err := gw.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored.SelectedCards)
}

func TestPresenceTouchesParticipant(t *testing.T) {
	gw := &scriptedGateway{Gateway: newGateway(t, true)}
	resolver := identity.NewResolver(identity.NewMemoryStorage(), nil, identity.Options{Profiles: gw})
	store := New(gw, resolver, Options{PresenceInterval: 20 * time.Millisecond})
	t.Cleanup(func() { store.LeaveSession(context.Background()) })

	require.NotEmpty(t, store.CreateSession(context.Background(), "D1"))
	require.Eventually(t, func() bool { return gw.touches.Load() >= 2 }, waitFor, tick)
}

func TestLeaveDeactivatesParticipant(t *testing.T) {
	gw := newGateway(t, true)
	host, _ := newStore(t, gw, hostUser())
	guest, _ := newStore(t, gw, nil)
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.True(t, guest.JoinSession(ctx, id))
	require.Eventually(t, func() bool { return len(host.Participants()) == 2 }, waitFor, tick)

	guest.LeaveSession(ctx)
	_, open := guest.State()
	assert.False(t, open)

	rows, err := gw.ListParticipants(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	require.Eventually(t, func() bool { return len(host.Participants()) == 1 }, waitFor, tick)
}

func TestSetGuestName(t *testing.T) {
	gw := newGateway(t, true)
	host, _ := newStore(t, gw, hostUser())
	guest, _ := newStore(t, gw, nil)
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.True(t, guest.JoinSession(ctx, id))

	guest.SetGuestName(ctx, "  Luna ")
	require.Nil(t, guest.Error())
	rows, err := gw.ListParticipants(ctx, id)
	require.NoError(t, err)
	var named bool
	for _, p := range rows {
		if p.ID == guest.ParticipantID() {
			require.NotNil(t, p.Name)
			named = *p.Name == "Luna"
		}
	}
	assert.True(t, named)

	host.SetGuestName(ctx, "Boss")
	require.NotNil(t, host.Error())
	assert.Equal(t, KindValidation, host.Error().Kind)
}

func TestUpgradeGuestAccountKeepsReading(t *testing.T) {
	gw := newGateway(t, true)
	guest, resolver := newStore(t, gw, nil)
	ctx := context.Background()

	id := guest.CreateSession(ctx, "D1")
	require.NotEmpty(t, id)
	require.True(t, guest.IsHost())
	self, err := resolver.Current(ctx)
	require.NoError(t, err)

	guest.UpdateSession(ctx, reading.Patch{Question: reading.Some("Before the upgrade")})
	require.True(t, guest.BeginGuestUpgrade(ctx, "user-new", "/reading/"+id))

	user := identity.Identity{ID: "user-new", DisplayName: "Nova"}
	require.True(t, guest.UpgradeGuestAccount(ctx, user))
	require.Nil(t, guest.Error())

	assert.False(t, guest.IsGuest())
	assert.True(t, guest.IsHost())
	st := state(t, guest)
	assert.Equal(t, id, st.ID)
	assert.Equal(t, "Before the upgrade", st.Question)
	require.NotNil(t, st.HostUserID)
	assert.Equal(t, "user-new", *st.HostUserID)
	require.NotNil(t, st.OriginalGuestID)
	assert.Equal(t, self.ID, *st.OriginalGuestID)

	_, err = resolver.Storage().Get(ctx, identity.KeyGuestToken)
	assert.ErrorIs(t, err, identity.ErrNotFound)

	rows, err := gw.ListParticipants(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "user-new", rows[0].IdentityID())
}

func TestRealtimeErrorAndReconnect(t *testing.T) {
	gw := &scriptedGateway{Gateway: newGateway(t, true)}
	host, _ := newStore(t, gw, hostUser())
	ctx := context.Background()

	host.CreateSession(ctx, "D1")
	gw.lastFeed().End(gateway.StatusChannelError)

	require.Eventually(t, func() bool {
		e := host.Error()
		return e != nil && e.Kind == KindRealtime
	}, waitFor, tick)

	require.True(t, host.Reconnect(ctx))
	assert.Nil(t, host.Error())
	assert.Equal(t, 2, gw.feedCount())
}

func TestChangesCoalesce(t *testing.T) {
	gw := newGateway(t, true)
	host, _ := newStore(t, gw, hostUser())

	host.CreateSession(context.Background(), "D1")
	host.UpdateSession(context.Background(), reading.Patch{Question: reading.Some("q")})

	select {
	case c := <-host.Changes():
		assert.True(t, c.Has(ChangeState))
		assert.True(t, c.Has(ChangeStatus))
	case <-time.After(waitFor):
		t.Fatal("no change notification")
	}
}

func TestCreatorRejoinsAsHostWithoutProfile(t *testing.T) {
	gw := newGateway(t, true)
	storage := identity.NewMemoryStorage()
	ctx := context.Background()
	open := func() *Store {
		resolver := identity.NewResolver(storage, nil, identity.Options{})
		store := New(gw, resolver, Options{PresenceInterval: time.Hour, VerifyDelay: time.Millisecond})
		t.Cleanup(func() { store.LeaveSession(context.Background()) })
		return store
	}

	first := open()
	id := first.CreateSession(ctx, "D1")
	require.NotEmpty(t, id)
	assert.False(t, first.Degraded())
	assert.True(t, first.IsHost())

	stored, err := gw.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.HostUserID)

	reloaded := open()
	require.True(t, reloaded.JoinSession(ctx, id))
	assert.True(t, reloaded.IsHost())
	assert.Equal(t, first.ParticipantID(), reloaded.ParticipantID())
}

func TestLeaveDuringJoinClosesSubscription(t *testing.T) {
	gw := &scriptedGateway{Gateway: newGateway(t, true)}
	host, _ := newStore(t, gw, hostUser())
	gated := newGatedGateway(gw)
	guest, _ := newStore(t, gated, nil)
	ctx := context.Background()

	id := host.CreateSession(ctx, "D1")
	require.Equal(t, 1, gw.feedCount())

	joined := make(chan bool, 1)
	go func() { joined <- guest.JoinSession(ctx, id) }()

	select {
	case <-gated.entered:
	case <-time.After(waitFor):
		t.Fatal("join never subscribed")
	}
	guest.LeaveSession(ctx)
	close(gated.release)

	select {
	case ok := <-joined:
		assert.False(t, ok)
	case <-time.After(waitFor):
		t.Fatal("join did not return")
	}

	require.Equal(t, 2, gw.feedCount())
	assert.Equal(t, gateway.StatusClosed, gw.lastFeed().Status())
	_, open := guest.State()
	assert.False(t, open)

	rows, err := gw.ListParticipants(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
