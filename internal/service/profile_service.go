package service

import (
	"context"
	"fmt"
	"strings"

	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/repository/unitofwork"
	"tarot-room-be/pkg/gateway"
)

type IProfileService interface {
	Ensure(ctx context.Context, id, displayName string, anonymous bool) error
	Delete(ctx context.Context, id string) error
}

type profileService struct {
	uowFactory unitofwork.RepositoryFactory
	clock      Clock
	logger     logger.ILogger
}

func NewProfileService(uowFactory unitofwork.RepositoryFactory, clock Clock, log logger.ILogger) IProfileService {
	if clock == nil {
		clock = SystemClock
	}
	return &profileService{uowFactory: uowFactory, clock: clock, logger: log}
}

// Ensure creates the profile if it does not exist yet. An existing profile is
// left as is.
func (s *profileService) Ensure(ctx context.Context, id, displayName string, anonymous bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: profile id is required", gateway.ErrInvalid)
	}
	err := s.uowFactory.NewUnitOfWork(ctx).UserProfileRepository().CreateIfAbsent(ctx, &entity.UserProfile{
		Id:          id,
		DisplayName: displayName,
		IsAnonymous: anonymous,
		CreatedAt:   s.clock(),
	})
	if err != nil {
		return fmt.Errorf("ensure profile %s: %w", id, err)
	}
	return nil
}

func (s *profileService) Delete(ctx context.Context, id string) error {
	if err := s.uowFactory.NewUnitOfWork(ctx).UserProfileRepository().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	s.logger.Info("READING", "Profile deleted", map[string]interface{}{"profile_id": id})
	return nil
}
