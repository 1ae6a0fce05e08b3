package service

import (
	"context"
	"errors"
	"fmt"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/mapper"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/specification"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/pkg/events"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/reading"
)

var errMigrationRace = errors.New("session changed during migration")

const maxMigrationAttempts = 3

type IMigrationService interface {
	MigrateOwnership(ctx context.Context, guestID, userID string) (gateway.MigrationResult, error)
}

type migrationService struct {
	uowFactory        unitofwork.RepositoryFactory
	sessionMapper     *mapper.ReadingSessionMapper
	participantMapper *mapper.SessionParticipantMapper
	notify            notifier
	clock             Clock
	logger            logger.ILogger
}

func NewMigrationService(
	uowFactory unitofwork.RepositoryFactory,
	broadcaster broadcast.Broadcaster,
	publisher events.Publisher,
	clock Clock,
	log logger.ILogger,
) IMigrationService {
	if clock == nil {
		clock = SystemClock
	}
	return &migrationService{
		uowFactory:        uowFactory,
		sessionMapper:     mapper.NewReadingSessionMapper(),
		participantMapper: mapper.NewSessionParticipantMapper(),
		notify:            notifier{broadcaster: broadcaster, publisher: publisher, logger: log},
		clock:             clock,
		logger:            log,
	}
}

type migrationOutcome struct {
	result       gateway.MigrationResult
	sessions     []reading.Session
	participants []reading.Participant
}

// MigrateOwnership re-points every row that references the guest to the
// user in one transaction. Running it again finds nothing left to move.
func (s *migrationService) MigrateOwnership(ctx context.Context, guestID, userID string) (gateway.MigrationResult, error) {
	if guestID == "" || userID == "" || guestID == userID {
		return gateway.MigrationResult{}, fmt.Errorf("%w: guest and user ids must be distinct and non-empty", gateway.ErrInvalid)
	}

	var (
		outcome migrationOutcome
		err     error
	)
	for attempt := 1; attempt <= maxMigrationAttempts; attempt++ {
		outcome, err = s.migrateOnce(ctx, guestID, userID)
		if !errors.Is(err, errMigrationRace) {
			break
		}
	}
	if err != nil {
		return gateway.MigrationResult{}, fmt.Errorf("migrate %s to %s: %w", guestID, userID, err)
	}

	now := s.clock()
	for _, session := range outcome.sessions {
		s.notify.change(ctx, reading.SessionChanged(session))
	}
	for _, p := range outcome.participants {
		s.notify.change(ctx, reading.ParticipantChanged(reading.ChangeUpdate, p, now))
	}
	s.notify.event(ctx, events.NewGuestMigrated(guestID, userID, outcome.result.SessionsMigrated, outcome.result.ParticipantsMigrated, now))

	s.logger.Info("READING", "Guest migrated", map[string]interface{}{
		"guest_id":              guestID,
		"user_id":               userID,
		"sessions_migrated":     outcome.result.SessionsMigrated,
		"participants_migrated": outcome.result.ParticipantsMigrated,
		"participants_retired":  outcome.result.ParticipantsRetired,
	})
	return outcome.result, nil
}

func (s *migrationService) migrateOnce(ctx context.Context, guestID, userID string) (migrationOutcome, error) {
	var out migrationOutcome

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return out, err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	sessions := uow.ReadingSessionRepository()
	hosted, err := sessions.FindAll(ctx, specification.ByHost{HostUserID: guestID})
	if err != nil {
		return out, err
	}
	for _, row := range hosted {
		updatedAt := nextUpdatedAt(s.clock(), row.UpdatedAt)
		columns := map[string]interface{}{
			"host_user_id": userID,
			"updated_at":   updatedAt,
			"revision":     row.Revision + 1,
		}
		if row.OriginalGuestId == nil {
			columns["original_guest_id"] = guestID
			row.OriginalGuestId = &guestID
		}
		written, err := sessions.UpdateColumns(ctx, row.Id, row.Revision, columns)
		if err != nil {
			return out, err
		}
		if !written {
			return out, errMigrationRace
		}
		row.HostUserId = &userID
		row.UpdatedAt = updatedAt
		row.Revision++
		out.sessions = append(out.sessions, s.sessionMapper.ToReading(row))
		out.result.SessionsMigrated++
	}

	participants := uow.SessionParticipantRepository()
	guestRows, err := participants.FindAll(ctx, specification.Filter("anonymous_id", guestID))
	if err != nil {
		return out, err
	}
	for _, row := range guestRows {
		taken, err := participants.FindOne(ctx,
			specification.BySessionID{SessionID: row.SessionId},
			specification.Filter("user_id", userID),
			specification.Active{},
		)
		if err != nil {
			return out, err
		}
		if taken != nil {
			// The user already sits at this table: retire the guest seat
			// instead of creating a second active one.
			if !row.IsActive {
				continue
			}
			if err := participants.UpdateColumns(ctx, row.Id, map[string]interface{}{"is_active": false}); err != nil {
				return out, err
			}
			row.IsActive = false
			out.participants = append(out.participants, s.participantMapper.ToReading(row))
			out.result.ParticipantsRetired++
			continue
		}

		if err := participants.UpdateColumns(ctx, row.Id, map[string]interface{}{
			"user_id":      userID,
			"anonymous_id": nil,
		}); err != nil {
			return out, err
		}
		repointed := *row
		repointed.UserId = &userID
		repointed.AnonymousId = nil
		out.participants = append(out.participants, s.participantMapper.ToReading(&repointed))
		out.result.ParticipantsMigrated++
	}

	if err := uow.Commit(); err != nil {
		return out, err
	}
	return out, nil
}
