package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ReadingSession struct {
	Id                 uuid.UUID      `gorm:"type:uuid;primaryKey"`
	HostUserId         *string        `gorm:"type:varchar(255);index"`
	OriginalGuestId    *string        `gorm:"type:varchar(255)"`
	DeckId             string         `gorm:"type:varchar(255);not null"`
	SelectedLayout     *string        `gorm:"type:varchar(64)"`
	Question           string         `gorm:"type:text;not null;default:''"`
	ReadingStep        string         `gorm:"type:varchar(32);not null;default:'setup'"`
	SelectedCards      datatypes.JSON `gorm:"not null"`
	Interpretation     string         `gorm:"type:text;not null;default:''"`
	ZoomLevel          float64        `gorm:"not null;default:1"`
	PanOffset          datatypes.JSON `gorm:"not null"`
	ZoomFocus          datatypes.JSON
	ShuffledDeck       datatypes.JSON
	LoadingStates      datatypes.JSON
	SharedModalState   datatypes.JSON
	DeckSelectionState datatypes.JSON
	IsActive           bool      `gorm:"not null;default:true;index"`
	Revision           int64     `gorm:"not null;default:0"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime:false"`
}

func (ReadingSession) TableName() string {
	return "reading_sessions"
}
