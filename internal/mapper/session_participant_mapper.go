package mapper

import (
	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/model"
	"tarot-room-be/pkg/reading"
)

type SessionParticipantMapper struct{}

func NewSessionParticipantMapper() *SessionParticipantMapper {
	return &SessionParticipantMapper{}
}

func (m *SessionParticipantMapper) ToEntity(p *model.SessionParticipant) *entity.SessionParticipant {
	if p == nil {
		return nil
	}
	return &entity.SessionParticipant{
		Id:          p.Id,
		SessionId:   p.SessionId,
		UserId:      p.UserId,
		AnonymousId: p.AnonymousId,
		Name:        p.Name,
		IsActive:    p.IsActive,
		LastSeenAt:  p.LastSeenAt,
		JoinedAt:    p.JoinedAt,
	}
}

func (m *SessionParticipantMapper) ToModel(p *entity.SessionParticipant) *model.SessionParticipant {
	if p == nil {
		return nil
	}
	return &model.SessionParticipant{
		Id:          p.Id,
		SessionId:   p.SessionId,
		UserId:      p.UserId,
		AnonymousId: p.AnonymousId,
		Name:        p.Name,
		IsActive:    p.IsActive,
		LastSeenAt:  p.LastSeenAt,
		JoinedAt:    p.JoinedAt,
	}
}

func (m *SessionParticipantMapper) ToEntities(participants []*model.SessionParticipant) []*entity.SessionParticipant {
	entities := make([]*entity.SessionParticipant, len(participants))
	for i, p := range participants {
		entities[i] = m.ToEntity(p)
	}
	return entities
}

func (m *SessionParticipantMapper) ToReading(p *entity.SessionParticipant) reading.Participant {
	return reading.Participant{
		ID:          p.Id.String(),
		SessionID:   p.SessionId.String(),
		UserID:      p.UserId,
		AnonymousID: p.AnonymousId,
		Name:        p.Name,
		IsActive:    p.IsActive,
		LastSeenAt:  p.LastSeenAt,
		JoinedAt:    p.JoinedAt,
	}
}

func (m *SessionParticipantMapper) ToReadings(participants []*entity.SessionParticipant) []reading.Participant {
	out := make([]reading.Participant, len(participants))
	for i, p := range participants {
		out[i] = m.ToReading(p)
	}
	return out
}
