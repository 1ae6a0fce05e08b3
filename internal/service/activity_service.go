package service

import (
	"context"
	"fmt"

	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/events"
	pktNats "tarot-room-be/pkg/nats"

	"github.com/google/uuid"
)

const activityDurable = "reading-activity-worker"

// ActivityService consumes reading lifecycle events. Each departure
// re-checks whether the session it left has gone idle.
type ActivityService struct {
	subscriber *pktNats.Subscriber
	sweeper    ISessionSweeperService
	logger     logger.ILogger
}

func NewActivityService(sub *pktNats.Subscriber, sweeper ISessionSweeperService, log logger.ILogger) *ActivityService {
	return &ActivityService{subscriber: sub, sweeper: sweeper, logger: log}
}

func (s *ActivityService) Start(ctx context.Context) {
	if err := s.subscriber.Subscribe(ctx, pktNats.SubjectPrefix+">", activityDurable, s.HandleEvent); err != nil {
		s.logger.Error("ActivityService", "Failed to start activity subscriber", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Info("ActivityService", "Activity service started, listening to events.>", nil)
}

func (s *ActivityService) HandleEvent(ctx context.Context, event events.Event) error {
	s.logger.Info("ActivityService", fmt.Sprintf("Processing event: %s", event.EventType()), event.Payload())

	if event.EventType() != events.ParticipantLeft {
		return nil
	}

	sessionID, err := uuid.Parse(events.StringField(event, "session_id"))
	if err != nil {
		s.logger.Warn("ActivityService", "Departure without a valid session id", map[string]interface{}{"error": err.Error()})
		return nil
	}
	deactivated, err := s.sweeper.SweepSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if deactivated {
		s.logger.Info("ActivityService", "Session went idle after last departure", map[string]interface{}{"session_id": sessionID.String()})
	}
	return nil
}
