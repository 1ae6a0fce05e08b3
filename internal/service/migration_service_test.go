package service

import (
	"context"
	"testing"

	"tarot-room-be/pkg/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateOwnership(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()
	guest, user := "guest-g", "user-u"

	require.NoError(t, f.profiles.Ensure(ctx, guest, "Guest", true))
	require.NoError(t, f.profiles.Ensure(ctx, user, "Una", false))

	// S1: hosted by the guest, who is its only participant.
	s1, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite", HostUserID: &guest})
	require.NoError(t, err)
	_, err = f.participants.Insert(ctx, gateway.NewParticipant{SessionID: s1.ID, AnonymousID: &guest})
	require.NoError(t, err)

	// S2: the user already sits at the table, and so does the guest.
	s2, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "thoth", HostUserID: &user})
	require.NoError(t, err)
	_, err = f.participants.Insert(ctx, gateway.NewParticipant{SessionID: s2.ID, UserID: &user})
	require.NoError(t, err)
	_, err = f.participants.Insert(ctx, gateway.NewParticipant{SessionID: s2.ID, AnonymousID: &guest})
	require.NoError(t, err)

	result, err := f.migrations.MigrateOwnership(ctx, guest, user)
	require.NoError(t, err)
	assert.Equal(t, gateway.MigrationResult{SessionsMigrated: 1, ParticipantsMigrated: 1, ParticipantsRetired: 1}, result)

	migrated, err := f.sessions.Get(ctx, s1.ID)
	require.NoError(t, err)
	require.NotNil(t, migrated.HostUserID)
	assert.Equal(t, user, *migrated.HostUserID)
	require.NotNil(t, migrated.OriginalGuestID)
	assert.Equal(t, guest, *migrated.OriginalGuestID)
	assert.True(t, migrated.UpdatedAt.After(s1.UpdatedAt))

	p, err := f.participants.FindActive(ctx, s1.ID, user)
	require.NoError(t, err)
	assert.Nil(t, p.AnonymousID)

	list, err := f.participants.List(ctx, s2.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].UserID)
	assert.Equal(t, user, *list[0].UserID)

	_, err = f.participants.FindActive(ctx, s2.ID, guest)
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	again, err := f.migrations.MigrateOwnership(ctx, guest, user)
	require.NoError(t, err)
	assert.Equal(t, gateway.MigrationResult{}, again)
	assert.Contains(t, f.publisher.Types(), "GUEST_MIGRATED")
}

func TestMigrationKeepsFirstOriginalGuest(t *testing.T) {
	f := newReadingFixture(t, true)
	ctx := context.Background()
	guest, first, second := "guest-g", "user-a", "user-b"

	require.NoError(t, f.profiles.Ensure(ctx, guest, "Guest", true))
	s, err := f.sessions.Create(ctx, gateway.NewSession{DeckID: "rider-waite", HostUserID: &guest})
	require.NoError(t, err)

	_, err = f.migrations.MigrateOwnership(ctx, guest, first)
	require.NoError(t, err)
	_, err = f.migrations.MigrateOwnership(ctx, first, second)
	require.NoError(t, err)

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, second, *got.HostUserID)
	assert.Equal(t, guest, *got.OriginalGuestID)
}

func TestMigrateOwnershipValidation(t *testing.T) {
	f := newReadingFixture(t, true)
	_, err := f.migrations.MigrateOwnership(context.Background(), "same", "same")
	assert.ErrorIs(t, err, gateway.ErrInvalid)
	_, err = f.migrations.MigrateOwnership(context.Background(), "", "user")
	assert.ErrorIs(t, err, gateway.ErrInvalid)
}
