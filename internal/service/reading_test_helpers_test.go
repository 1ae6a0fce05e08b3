package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/pkg/database"
	"tarot-room-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type readingFixture struct {
	db           *gorm.DB
	uow          unitofwork.RepositoryFactory
	broadcaster  *broadcast.LocalBroadcaster
	publisher    *recordingPublisher
	clock        *fakeClock
	sessions     IReadingSessionService
	participants IParticipantService
	profiles     IProfileService
	migrations   IMigrationService
}

func newReadingFixture(t *testing.T, guestWrites bool) *readingFixture {
	t.Helper()

	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	log := logger.NewNop()
	f := &readingFixture{
		db:          db,
		uow:         unitofwork.NewRepositoryFactory(db),
		broadcaster: broadcast.NewLocalBroadcaster(log),
		publisher:   &recordingPublisher{},
		clock:       newFakeClock(),
	}
	t.Cleanup(func() { _ = f.broadcaster.Close() })

	f.sessions = NewReadingSessionService(f.uow, f.broadcaster, f.publisher, ReadingSessionConfig{GuestWritesEnabled: guestWrites}, f.clock.Now, log)
	f.participants = NewParticipantService(f.uow, f.broadcaster, f.publisher, f.clock.Now, log)
	f.profiles = NewProfileService(f.uow, f.clock.Now, log)
	f.migrations = NewMigrationService(f.uow, f.broadcaster, f.publisher, f.clock.Now, log)
	return f
}
