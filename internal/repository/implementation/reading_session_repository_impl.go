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

type ReadingSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ReadingSessionMapper
}

func NewReadingSessionRepository(db *gorm.DB) contract.ReadingSessionRepository {
	return &ReadingSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewReadingSessionMapper(),
	}
}

func (r *ReadingSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ReadingSessionRepositoryImpl) Create(ctx context.Context, session *entity.ReadingSession) error {
	m, err := r.mapper.ToModel(session)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return classify(err)
	}
	created, err := r.mapper.ToEntity(m)
	if err != nil {
		return err
	}
	*session = *created
	return nil
}

func (r *ReadingSessionRepositoryImpl) UpdateColumns(ctx context.Context, id uuid.UUID, expectedRevision int64, columns map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ReadingSession{}).
		Where("id = ? AND revision = ?", id, expectedRevision).
		Updates(columns)
	if result.Error != nil {
		return false, classify(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *ReadingSessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ReadingSession, error) {
	var m model.ReadingSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return r.mapper.ToEntity(&m)
}

func (r *ReadingSessionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ReadingSession, error) {
	var models []*model.ReadingSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, classify(err)
	}

	entities := make([]*entity.ReadingSession, 0, len(models))
	for _, m := range models {
		e, err := r.mapper.ToEntity(m)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (r *ReadingSessionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ReadingSession{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, classify(err)
	}
	return count, nil
}
