package implementation

import (
	"context"
	"errors"

	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/mapper"
	"tarot-room-be/internal/model"
	"tarot-room-be/internal/repository/contract"
	"tarot-room-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserProfileRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.UserProfileMapper
}

func NewUserProfileRepository(db *gorm.DB) contract.UserProfileRepository {
	return &UserProfileRepositoryImpl{
		db:     db,
		mapper: mapper.NewUserProfileMapper(),
	}
}

func (r *UserProfileRepositoryImpl) CreateIfAbsent(ctx context.Context, profile *entity.UserProfile) error {
	m := r.mapper.ToModel(profile)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(m).Error
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *UserProfileRepositoryImpl) Delete(ctx context.Context, id string) error {
	return classify(r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.UserProfile{}).Error)
}

func (r *UserProfileRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.UserProfile, error) {
	var m model.UserProfile
	query := r.db.WithContext(ctx)
	for _, spec := range specs {
		query = spec.Apply(query)
	}
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return r.mapper.ToEntity(&m), nil
}
