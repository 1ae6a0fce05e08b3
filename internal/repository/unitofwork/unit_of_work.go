package unitofwork

import (
	"context"

	"tarot-room-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ReadingSessionRepository() contract.ReadingSessionRepository
	SessionParticipantRepository() contract.SessionParticipantRepository
	UserProfileRepository() contract.UserProfileRepository
}
