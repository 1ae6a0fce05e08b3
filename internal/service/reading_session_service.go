package service

import (
	"context"
	"errors"
	"fmt"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/mapper"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/implementation"
	"tarot-room-be/internal/repository/specification"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/pkg/events"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/reading"

	"github.com/google/uuid"
)

const maxUpdateAttempts = 5

type IReadingSessionService interface {
	Create(ctx context.Context, in gateway.NewSession) (reading.Session, error)
	Get(ctx context.Context, id string) (reading.Session, error)
	Update(ctx context.Context, id string, actor gateway.Actor, patch reading.Patch) (reading.Session, error)
}

type ReadingSessionConfig struct {
	GuestWritesEnabled bool
}

type readingSessionService struct {
	uowFactory unitofwork.RepositoryFactory
	mapper     *mapper.ReadingSessionMapper
	notify     notifier
	cfg        ReadingSessionConfig
	clock      Clock
	logger     logger.ILogger
}

func NewReadingSessionService(
	uowFactory unitofwork.RepositoryFactory,
	broadcaster broadcast.Broadcaster,
	publisher events.Publisher,
	cfg ReadingSessionConfig,
	clock Clock,
	log logger.ILogger,
) IReadingSessionService {
	if clock == nil {
		clock = SystemClock
	}
	return &readingSessionService{
		uowFactory: uowFactory,
		mapper:     mapper.NewReadingSessionMapper(),
		notify:     notifier{broadcaster: broadcaster, publisher: publisher, logger: log},
		cfg:        cfg,
		clock:      clock,
		logger:     log,
	}
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id %q", gateway.ErrNotFound, id)
	}
	return parsed, nil
}

func (s *readingSessionService) Create(ctx context.Context, in gateway.NewSession) (reading.Session, error) {
	if in.DeckID == "" {
		return reading.Session{}, fmt.Errorf("%w: deck id is required", gateway.ErrInvalid)
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)

	now := s.clock()
	initial := reading.NewSession(uuid.NewString(), in.DeckID, in.HostUserID, now)
	row := &entity.ReadingSession{
		Id:            uuid.MustParse(initial.ID),
		HostUserId:    initial.HostUserID,
		DeckId:        initial.DeckID,
		ReadingStep:   initial.ReadingStep,
		SelectedCards: initial.SelectedCards,
		ZoomLevel:     initial.ZoomLevel,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uow.ReadingSessionRepository().Create(ctx, row); err != nil {
		return reading.Session{}, fmt.Errorf("create session: %w", err)
	}

	created := s.mapper.ToReading(row)
	ev := reading.SessionChanged(created)
	ev.Type = reading.ChangeInsert
	s.notify.change(ctx, ev)
	s.notify.event(ctx, events.NewSessionCreated(created.ID, created.HostUserID, now))

	s.logger.Info("READING", "Session created", map[string]interface{}{"session_id": created.ID, "deck_id": in.DeckID})
	return created, nil
}

func (s *readingSessionService) Get(ctx context.Context, id string) (reading.Session, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return reading.Session{}, err
	}
	row, err := s.uowFactory.NewUnitOfWork(ctx).ReadingSessionRepository().FindOne(ctx, specification.ByID{ID: sessionID})
	if err != nil {
		return reading.Session{}, err
	}
	if row == nil {
		return reading.Session{}, fmt.Errorf("session %s: %w", id, gateway.ErrNotFound)
	}
	return s.mapper.ToReading(row), nil
}

// Update writes the present patch fields with a compare-and-set on the row
// revision, retrying when another writer got there first. The committed state
// is broadcast to every subscriber, the writer included.
func (s *readingSessionService) Update(ctx context.Context, id string, actor gateway.Actor, patch reading.Patch) (reading.Session, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return reading.Session{}, err
	}
	if actor.Anonymous && !s.cfg.GuestWritesEnabled {
		return reading.Session{}, fmt.Errorf("guest %s may not update sessions: %w", actor.ID, gateway.ErrPermissionDenied)
	}

	columns, err := s.mapper.PatchColumns(patch)
	if err != nil {
		return reading.Session{}, fmt.Errorf("%w: %v", gateway.ErrInvalid, err)
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).ReadingSessionRepository()
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		row, err := repo.FindOne(ctx, specification.ByID{ID: sessionID})
		if err != nil {
			return reading.Session{}, err
		}
		if row == nil || !row.IsActive {
			return reading.Session{}, fmt.Errorf("session %s not found or inactive: %w", id, gateway.ErrNotFound)
		}

		current := s.mapper.ToReading(row)
		if err := patch.Validate(current); err != nil {
			return reading.Session{}, fmt.Errorf("%w: %v", gateway.ErrInvalid, err)
		}
		if patch.IsEmpty() {
			return current, nil
		}

		updatedAt := nextUpdatedAt(s.clock(), row.UpdatedAt)
		columns["updated_at"] = updatedAt
		columns["revision"] = row.Revision + 1

		written, err := repo.UpdateColumns(ctx, sessionID, row.Revision, columns)
		if err != nil {
			if errors.Is(err, implementation.ErrPermissionDenied) {
				return reading.Session{}, fmt.Errorf("update session %s: %w", id, gateway.ErrPermissionDenied)
			}
			return reading.Session{}, fmt.Errorf("update session %s: %w", id, err)
		}
		if !written {
			s.logger.Debug("READING", "Lost update race, retrying", map[string]interface{}{"session_id": id, "attempt": attempt})
			continue
		}

		committed := patch.Apply(current)
		committed.UpdatedAt = updatedAt
		s.notify.change(ctx, reading.SessionChanged(committed))
		return committed, nil
	}
	return reading.Session{}, fmt.Errorf("update session %s: too many concurrent writers", id)
}
