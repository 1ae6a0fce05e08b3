package contract

import (
	"context"

	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/repository/specification"
)

type UserProfileRepository interface {
	// CreateIfAbsent inserts the profile unless a row with the same id exists.
	CreateIfAbsent(ctx context.Context, profile *entity.UserProfile) error
	Delete(ctx context.Context, id string) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.UserProfile, error)
}
