package contract

import (
	"context"

	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ReadingSessionRepository interface {
	Create(ctx context.Context, session *entity.ReadingSession) error
	// UpdateColumns writes the columns only if the row still carries the
	// expected revision. It reports whether the row was written.
	UpdateColumns(ctx context.Context, id uuid.UUID, expectedRevision int64, columns map[string]interface{}) (bool, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ReadingSession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ReadingSession, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
