package mapper

import (
	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/model"
)

type UserProfileMapper struct{}

func NewUserProfileMapper() *UserProfileMapper {
	return &UserProfileMapper{}
}

func (m *UserProfileMapper) ToEntity(p *model.UserProfile) *entity.UserProfile {
	if p == nil {
		return nil
	}
	return &entity.UserProfile{
		Id:          p.Id,
		DisplayName: p.DisplayName,
		IsAnonymous: p.IsAnonymous,
		CreatedAt:   p.CreatedAt,
	}
}

func (m *UserProfileMapper) ToModel(p *entity.UserProfile) *model.UserProfile {
	if p == nil {
		return nil
	}
	return &model.UserProfile{
		Id:          p.Id,
		DisplayName: p.DisplayName,
		IsAnonymous: p.IsAnonymous,
		CreatedAt:   p.CreatedAt,
	}
}
