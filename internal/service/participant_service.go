package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

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

const maxParticipantNameLength = 100

type IParticipantService interface {
	Insert(ctx context.Context, in gateway.NewParticipant) (reading.Participant, error)
	FindActive(ctx context.Context, sessionID, identityID string) (reading.Participant, error)
	List(ctx context.Context, sessionID string) ([]reading.Participant, error)
	Touch(ctx context.Context, participantID string) error
	Rename(ctx context.Context, participantID, name string) (reading.Participant, error)
	Deactivate(ctx context.Context, participantID string) error
}

type participantService struct {
	uowFactory unitofwork.RepositoryFactory
	mapper     *mapper.SessionParticipantMapper
	notify     notifier
	clock      Clock
	logger     logger.ILogger
}

func NewParticipantService(
	uowFactory unitofwork.RepositoryFactory,
	broadcaster broadcast.Broadcaster,
	publisher events.Publisher,
	clock Clock,
	log logger.ILogger,
) IParticipantService {
	if clock == nil {
		clock = SystemClock
	}
	return &participantService{
		uowFactory: uowFactory,
		mapper:     mapper.NewSessionParticipantMapper(),
		notify:     notifier{broadcaster: broadcaster, publisher: publisher, logger: log},
		clock:      clock,
		logger:     log,
	}
}

// Insert is idempotent: an active row for the same (session, identity) is
// returned instead of creating a second one.
func (s *participantService) Insert(ctx context.Context, in gateway.NewParticipant) (reading.Participant, error) {
	if (in.UserID == nil) == (in.AnonymousID == nil) {
		return reading.Participant{}, fmt.Errorf("%w: exactly one of user id and anonymous id is required", gateway.ErrInvalid)
	}
	sessionID, err := parseID(in.SessionID)
	if err != nil {
		return reading.Participant{}, err
	}
	identityID := ""
	switch {
	case in.UserID != nil:
		identityID = *in.UserID
	case in.AnonymousID != nil:
		identityID = *in.AnonymousID
	}

	p, created, err := s.insertOnce(ctx, sessionID, identityID, in)
	if err != nil && errors.Is(err, implementation.ErrUniqueViolation) {
		// Another instance inserted the same identity between our lookup and insert.
		p, created, err = s.insertOnce(ctx, sessionID, identityID, in)
	}
	if err != nil {
		return reading.Participant{}, err
	}

	out := s.mapper.ToReading(p)
	if created {
		s.notify.change(ctx, reading.ParticipantChanged(reading.ChangeInsert, out, out.JoinedAt))
		s.notify.event(ctx, events.NewParticipantJoined(out.SessionID, out.ID, identityID, out.JoinedAt))
	}
	return out, nil
}

func (s *participantService) insertOnce(ctx context.Context, sessionID uuid.UUID, identityID string, in gateway.NewParticipant) (*entity.SessionParticipant, bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, false, err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	session, err := uow.ReadingSessionRepository().FindOne(ctx, specification.ByID{ID: sessionID})
	if err != nil {
		return nil, false, err
	}
	if session == nil || !session.IsActive {
		return nil, false, fmt.Errorf("session %s not found or inactive: %w", sessionID, gateway.ErrNotFound)
	}

	repo := uow.SessionParticipantRepository()
	existing, err := repo.FindOne(ctx,
		specification.BySessionID{SessionID: sessionID},
		specification.ByParticipantIdentity{IdentityID: identityID},
		specification.Active{},
	)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, uow.Commit()
	}

	now := s.clock()
	p := &entity.SessionParticipant{
		Id:          uuid.New(),
		SessionId:   sessionID,
		UserId:      in.UserID,
		AnonymousId: in.AnonymousID,
		Name:        in.Name,
		IsActive:    true,
		LastSeenAt:  now,
		JoinedAt:    now,
	}
	if err := repo.Create(ctx, p); err != nil {
		return nil, false, err
	}
	if err := uow.Commit(); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *participantService) FindActive(ctx context.Context, sessionID, identityID string) (reading.Participant, error) {
	id, err := parseID(sessionID)
	if err != nil {
		return reading.Participant{}, err
	}
	p, err := s.uowFactory.NewUnitOfWork(ctx).SessionParticipantRepository().FindOne(ctx,
		specification.BySessionID{SessionID: id},
		specification.ByParticipantIdentity{IdentityID: identityID},
		specification.Active{},
	)
	if err != nil {
		return reading.Participant{}, err
	}
	if p == nil {
		return reading.Participant{}, fmt.Errorf("no active participant for %s in %s: %w", identityID, sessionID, gateway.ErrNotFound)
	}
	return s.mapper.ToReading(p), nil
}

func (s *participantService) List(ctx context.Context, sessionID string) ([]reading.Participant, error) {
	id, err := parseID(sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.uowFactory.NewUnitOfWork(ctx).SessionParticipantRepository().FindAll(ctx,
		specification.BySessionID{SessionID: id},
		specification.Active{},
		specification.OrderBy{Field: "joined_at"},
	)
	if err != nil {
		return nil, err
	}
	return s.mapper.ToReadings(rows), nil
}

// Touch refreshes presence. Heartbeats are not broadcast: they do not change
// the roster.
func (s *participantService) Touch(ctx context.Context, participantID string) error {
	id, err := parseID(participantID)
	if err != nil {
		return err
	}
	err = s.uowFactory.NewUnitOfWork(ctx).SessionParticipantRepository().UpdateColumns(ctx, id, map[string]interface{}{
		"last_seen_at": s.clock(),
	})
	return mapRowError(err, participantID)
}

func (s *participantService) Rename(ctx context.Context, participantID, name string) (reading.Participant, error) {
	id, err := parseID(participantID)
	if err != nil {
		return reading.Participant{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxParticipantNameLength {
		return reading.Participant{}, fmt.Errorf("%w: name must be 1-%d characters", gateway.ErrInvalid, maxParticipantNameLength)
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).SessionParticipantRepository()
	if err := repo.UpdateColumns(ctx, id, map[string]interface{}{"name": name}); err != nil {
		return reading.Participant{}, mapRowError(err, participantID)
	}
	p, err := repo.FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return reading.Participant{}, err
	}
	if p == nil {
		return reading.Participant{}, fmt.Errorf("participant %s: %w", participantID, gateway.ErrNotFound)
	}

	out := s.mapper.ToReading(p)
	s.notify.change(ctx, reading.ParticipantChanged(reading.ChangeUpdate, out, s.clock()))
	return out, nil
}

func (s *participantService) Deactivate(ctx context.Context, participantID string) error {
	id, err := parseID(participantID)
	if err != nil {
		return err
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).SessionParticipantRepository()
	now := s.clock()
	if err := repo.UpdateColumns(ctx, id, map[string]interface{}{"is_active": false, "last_seen_at": now}); err != nil {
		return mapRowError(err, participantID)
	}
	p, err := repo.FindOne(ctx, specification.ByID{ID: id})
	if err != nil || p == nil {
		return err
	}

	out := s.mapper.ToReading(p)
	s.notify.change(ctx, reading.ParticipantChanged(reading.ChangeUpdate, out, now))
	s.notify.event(ctx, events.NewParticipantLeft(out.SessionID, out.ID, now))
	return nil
}

func mapRowError(err error, id string) error {
	if errors.Is(err, implementation.ErrRowNotFound) {
		return fmt.Errorf("participant %s: %w", id, gateway.ErrNotFound)
	}
	return err
}
