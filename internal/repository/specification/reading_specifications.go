package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByStringID filters tables keyed by an opaque string id.
type ByStringID struct {
	ID string
}

func (s ByStringID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

type Active struct{}

func (s Active) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

type BySessionID struct {
	SessionID uuid.UUID
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

// ByParticipantIdentity matches a participant row by either identity column.
type ByParticipantIdentity struct {
	IdentityID string
}

func (s ByParticipantIdentity) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("(user_id = ? OR anonymous_id = ?)", s.IdentityID, s.IdentityID)
}

type ByHost struct {
	HostUserID string
}

func (s ByHost) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("host_user_id = ?", s.HostUserID)
}
