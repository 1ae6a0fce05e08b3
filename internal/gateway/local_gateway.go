// Package gateway adapts the reading services to the client-side gateway
// contract so a Store can run in the same process as the API.
package gateway

import (
	"context"

	"tarot-room-be/internal/broadcast"
	"tarot-room-be/internal/service"
	contract "tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/reading"
)

const feedBuffer = 64

type LocalGateway struct {
	sessions     service.IReadingSessionService
	participants service.IParticipantService
	profiles     service.IProfileService
	migrations   service.IMigrationService
	broadcaster  broadcast.Broadcaster
}

var _ contract.Gateway = (*LocalGateway)(nil)

func NewLocalGateway(
	sessions service.IReadingSessionService,
	participants service.IParticipantService,
	profiles service.IProfileService,
	migrations service.IMigrationService,
	broadcaster broadcast.Broadcaster,
) *LocalGateway {
	return &LocalGateway{
		sessions:     sessions,
		participants: participants,
		profiles:     profiles,
		migrations:   migrations,
		broadcaster:  broadcaster,
	}
}

func (g *LocalGateway) InsertSession(ctx context.Context, in contract.NewSession) (reading.Session, error) {
	return g.sessions.Create(ctx, in)
}

func (g *LocalGateway) GetSession(ctx context.Context, id string) (reading.Session, error) {
	return g.sessions.Get(ctx, id)
}

func (g *LocalGateway) UpdateSession(ctx context.Context, id string, actor contract.Actor, patch reading.Patch) (reading.Session, error) {
	return g.sessions.Update(ctx, id, actor, patch)
}

func (g *LocalGateway) FindActiveParticipant(ctx context.Context, sessionID, identityID string) (reading.Participant, error) {
	return g.participants.FindActive(ctx, sessionID, identityID)
}

func (g *LocalGateway) InsertParticipant(ctx context.Context, in contract.NewParticipant) (reading.Participant, error) {
	return g.participants.Insert(ctx, in)
}

func (g *LocalGateway) ListParticipants(ctx context.Context, sessionID string) ([]reading.Participant, error) {
	return g.participants.List(ctx, sessionID)
}

func (g *LocalGateway) TouchParticipant(ctx context.Context, participantID string) error {
	return g.participants.Touch(ctx, participantID)
}

func (g *LocalGateway) RenameParticipant(ctx context.Context, participantID, name string) (reading.Participant, error) {
	return g.participants.Rename(ctx, participantID, name)
}

func (g *LocalGateway) DeactivateParticipant(ctx context.Context, participantID string) error {
	return g.participants.Deactivate(ctx, participantID)
}

func (g *LocalGateway) EnsureProfile(ctx context.Context, id, displayName string, anonymous bool) error {
	return g.profiles.Ensure(ctx, id, displayName, anonymous)
}

func (g *LocalGateway) DeleteProfile(ctx context.Context, id string) error {
	return g.profiles.Delete(ctx, id)
}

func (g *LocalGateway) MigrateOwnership(ctx context.Context, guestID, userID string) (contract.MigrationResult, error) {
	return g.migrations.MigrateOwnership(ctx, guestID, userID)
}

// Subscribe opens a feed on the session's broadcast topic. The feed lives
// until Close, or ends with CHANNEL_ERROR if the broadcaster drops the stream.
func (g *LocalGateway) Subscribe(ctx context.Context, sessionID string) (contract.Subscription, error) {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := g.broadcaster.Subscribe(subCtx, sessionID)
	if err != nil {
		cancel()
		return nil, err
	}

	feed := contract.NewFeed(feedBuffer, cancel)
	go pump(stream, feed)
	return feed, nil
}

func pump(stream <-chan reading.ChangeEvent, feed *contract.Feed) {
	for ev := range stream {
		if !feed.Push(ev) {
			// Closed by the consumer; drain until the broadcaster lets go.
			for range stream {
			}
			return
		}
	}
	feed.End(contract.StatusChannelError)
}
