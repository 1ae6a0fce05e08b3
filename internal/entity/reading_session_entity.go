package entity

import (
	"time"

	"tarot-room-be/pkg/reading"

	"github.com/google/uuid"
)

type ReadingSession struct {
	Id                 uuid.UUID
	HostUserId         *string
	OriginalGuestId    *string
	DeckId             string
	SelectedLayout     *string
	Question           string
	ReadingStep        reading.ReadingStep
	SelectedCards      []reading.SelectedCard
	Interpretation     string
	ZoomLevel          float64
	PanOffset          reading.Vec2
	ZoomFocus          *reading.Vec2
	ShuffledDeck       []string
	LoadingStates      *reading.LoadingStates
	SharedModalState   *reading.SharedModalState
	DeckSelectionState *reading.DeckSelectionState
	IsActive           bool
	Revision           int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type SessionParticipant struct {
	Id          uuid.UUID
	SessionId   uuid.UUID
	UserId      *string
	AnonymousId *string
	Name        *string
	IsActive    bool
	LastSeenAt  time.Time
	JoinedAt    time.Time
}

// IdentityId returns whichever identity column the row carries.
func (p *SessionParticipant) IdentityId() string {
	if p.UserId != nil {
		return *p.UserId
	}
	if p.AnonymousId != nil {
		return *p.AnonymousId
	}
	return ""
}

type UserProfile struct {
	Id          string
	DisplayName string
	IsAnonymous bool
	CreatedAt   time.Time
}
