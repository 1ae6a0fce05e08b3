package contract

import (
	"context"

	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/repository/specification"

	"github.com/google/uuid"
)

type SessionParticipantRepository interface {
	Create(ctx context.Context, participant *entity.SessionParticipant) error
	UpdateColumns(ctx context.Context, id uuid.UUID, columns map[string]interface{}) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.SessionParticipant, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SessionParticipant, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
