// Package gateway is the persistence and broadcast boundary used by the
// reading room: row operations on sessions, participants and profiles, plus a
// per-session change stream.
package gateway

import (
	"context"
	"errors"

	"tarot-room-be/pkg/reading"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalid          = errors.New("invalid request")
)

// Actor is the identity a row operation is performed as.
type Actor struct {
	ID        string
	Anonymous bool
}

type NewSession struct {
	DeckID     string
	HostUserID *string
}

type NewParticipant struct {
	SessionID   string
	UserID      *string
	AnonymousID *string
	Name        *string
}

type MigrationResult struct {
	SessionsMigrated     int `json:"sessionsMigrated"`
	ParticipantsMigrated int `json:"participantsMigrated"`
	ParticipantsRetired  int `json:"participantsRetired"`
}

type Gateway interface {
	InsertSession(ctx context.Context, in NewSession) (reading.Session, error)
	// GetSession returns ErrNotFound when no row has the id.
	GetSession(ctx context.Context, id string) (reading.Session, error)
	// UpdateSession writes only the fields present in the patch and returns
	// the committed row.
	UpdateSession(ctx context.Context, id string, actor Actor, patch reading.Patch) (reading.Session, error)

	FindActiveParticipant(ctx context.Context, sessionID, identityID string) (reading.Participant, error)
	InsertParticipant(ctx context.Context, in NewParticipant) (reading.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]reading.Participant, error)
	TouchParticipant(ctx context.Context, participantID string) error
	RenameParticipant(ctx context.Context, participantID, name string) (reading.Participant, error)
	DeactivateParticipant(ctx context.Context, participantID string) error

	EnsureProfile(ctx context.Context, id, displayName string, anonymous bool) error
	DeleteProfile(ctx context.Context, id string) error
	MigrateOwnership(ctx context.Context, guestID, userID string) (MigrationResult, error)

	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

// IsTransient reports whether err is none of the well-known gateway failures.
func IsTransient(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrPermissionDenied) &&
		!errors.Is(err, ErrInvalid)
}
