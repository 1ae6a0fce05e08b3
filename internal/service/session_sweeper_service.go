package service

import (
	"context"
	"fmt"
	"time"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/mapper"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/specification"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/pkg/events"
	"tarot-room-be/pkg/reading"

	"github.com/google/uuid"
)

const reasonIdle = "idle"

// ISessionSweeperService deactivates sessions nobody has been seen in for
// the idle timeout. Sessions are never deleted.
type ISessionSweeperService interface {
	Start(ctx context.Context)
	Sweep(ctx context.Context) (int, error)
	SweepSession(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

type sessionSweeperService struct {
	uowFactory  unitofwork.RepositoryFactory
	mapper      *mapper.ReadingSessionMapper
	notify      notifier
	idleTimeout time.Duration
	interval    time.Duration
	clock       Clock
	logger      logger.ILogger
}

func NewSessionSweeperService(
	uowFactory unitofwork.RepositoryFactory,
	broadcaster broadcast.Broadcaster,
	publisher events.Publisher,
	idleTimeout, interval time.Duration,
	clock Clock,
	log logger.ILogger,
) ISessionSweeperService {
	if clock == nil {
		clock = SystemClock
	}
	return &sessionSweeperService{
		uowFactory:  uowFactory,
		mapper:      mapper.NewReadingSessionMapper(),
		notify:      notifier{broadcaster: broadcaster, publisher: publisher, logger: log},
		idleTimeout: idleTimeout,
		interval:    interval,
		clock:       clock,
		logger:      log,
	}
}

func (s *sessionSweeperService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("SWEEPER", "Session sweeper started", map[string]interface{}{
		"interval":     s.interval.String(),
		"idle_timeout": s.idleTimeout.String(),
	})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("SWEEPER", "Sweep failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if n > 0 {
				s.logger.Info("SWEEPER", "Deactivated idle sessions", map[string]interface{}{"count": n})
			}
		}
	}
}

func (s *sessionSweeperService) Sweep(ctx context.Context) (int, error) {
	rows, err := s.uowFactory.NewUnitOfWork(ctx).ReadingSessionRepository().FindAll(ctx, specification.Active{})
	if err != nil {
		return 0, err
	}

	deactivated := 0
	for _, row := range rows {
		ok, err := s.sweep(ctx, row)
		if err != nil {
			return deactivated, err
		}
		if ok {
			deactivated++
		}
	}
	return deactivated, nil
}

func (s *sessionSweeperService) SweepSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	row, err := s.uowFactory.NewUnitOfWork(ctx).ReadingSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionID},
		specification.Active{},
	)
	if err != nil || row == nil {
		return false, err
	}
	return s.sweep(ctx, row)
}

// lastActivity is the newest participant sighting, or the session's own
// last write when nobody ever joined.
func (s *sessionSweeperService) lastActivity(ctx context.Context, row *entity.ReadingSession) (time.Time, error) {
	latest, err := s.uowFactory.NewUnitOfWork(ctx).SessionParticipantRepository().FindOne(ctx,
		specification.BySessionID{SessionID: row.Id},
		specification.OrderBy{Field: "last_seen_at", Desc: true},
	)
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil || latest.LastSeenAt.Before(row.UpdatedAt) {
		return row.UpdatedAt, nil
	}
	return latest.LastSeenAt, nil
}

func (s *sessionSweeperService) sweep(ctx context.Context, row *entity.ReadingSession) (bool, error) {
	last, err := s.lastActivity(ctx, row)
	if err != nil {
		return false, err
	}
	now := s.clock()
	if now.Sub(last) < s.idleTimeout {
		return false, nil
	}

	updatedAt := nextUpdatedAt(now, row.UpdatedAt)
	written, err := s.uowFactory.NewUnitOfWork(ctx).ReadingSessionRepository().UpdateColumns(ctx, row.Id, row.Revision, map[string]interface{}{
		"is_active":  false,
		"updated_at": updatedAt,
		"revision":   row.Revision + 1,
	})
	if err != nil {
		return false, fmt.Errorf("deactivate session %s: %w", row.Id, err)
	}
	if !written {
		// Someone wrote to it meanwhile, so it is not idle.
		return false, nil
	}

	row.IsActive = false
	row.UpdatedAt = updatedAt
	row.Revision++
	state := s.mapper.ToReading(row)
	s.notify.change(ctx, reading.SessionChanged(state))
	s.notify.event(ctx, events.NewSessionDeactivated(state.ID, reasonIdle, now))
	return true, nil
}
