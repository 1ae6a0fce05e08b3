package implementation

import (
	"context"
	"errors"

	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/mapper"
	"tarot-room-be/internal/model"
	"tarot-room-be/internal/repository/contract"
	"tarot-room-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionParticipantRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SessionParticipantMapper
}

func NewSessionParticipantRepository(db *gorm.DB) contract.SessionParticipantRepository {
	return &SessionParticipantRepositoryImpl{
		db:     db,
		mapper: mapper.NewSessionParticipantMapper(),
	}
}

func (r *SessionParticipantRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *SessionParticipantRepositoryImpl) Create(ctx context.Context, participant *entity.SessionParticipant) error {
	m := r.mapper.ToModel(participant)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return classify(err)
	}
	*participant = *r.mapper.ToEntity(m)
	return nil
}

func (r *SessionParticipantRepositoryImpl) UpdateColumns(ctx context.Context, id uuid.UUID, columns map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.SessionParticipant{}).
		Where("id = ?", id).
		Updates(columns)
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (r *SessionParticipantRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.SessionParticipant, error) {
	var m model.SessionParticipant
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *SessionParticipantRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.SessionParticipant, error) {
	var models []*model.SessionParticipant
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	return r.mapper.ToEntities(models), nil
}

func (r *SessionParticipantRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.SessionParticipant{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, classify(err)
	}
	return count, nil
}
