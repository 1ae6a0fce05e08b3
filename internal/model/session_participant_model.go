package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionParticipant allows one active row per (session, user) and per
// (session, anonymous id).
type SessionParticipant struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionId   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_participant_active_user,where:is_active;uniqueIndex:idx_participant_active_guest,where:is_active"`
	UserId      *string   `gorm:"type:varchar(255);index;uniqueIndex:idx_participant_active_user,where:is_active"`
	AnonymousId *string   `gorm:"type:varchar(255);index;uniqueIndex:idx_participant_active_guest,where:is_active"`
	Name        *string   `gorm:"type:varchar(100)"`
	IsActive    bool      `gorm:"not null;default:true"`
	LastSeenAt  time.Time `gorm:"not null;index"`
	JoinedAt    time.Time `gorm:"not null"`
}

func (SessionParticipant) TableName() string {
	return "session_participants"
}
