package dto

import (
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/reading"
)

type CreateSessionRequest struct {
	DeckID     string  `json:"deckId" validate:"required,max=100"`
	HostUserID *string `json:"hostUserId,omitempty"`
}

type InsertParticipantRequest struct {
	UserID      *string `json:"userId,omitempty"`
	AnonymousID *string `json:"anonymousId,omitempty"`
	Name        *string `json:"name,omitempty" validate:"omitempty,max=100"`
}

type RenameParticipantRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type EnsureProfileRequest struct {
	DisplayName string `json:"displayName" validate:"max=100"`
	Anonymous   bool   `json:"anonymous"`
}

type MigrateOwnershipRequest struct {
	GuestID string `json:"guestId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

type SessionResponse = reading.Session

type ParticipantResponse = reading.Participant

type MigrationResponse = gateway.MigrationResult
