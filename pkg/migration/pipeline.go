// Package migration moves a guest's readings onto the account the guest just
// signed in with, restoring the guest session when that fails.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/identity"
	"tarot-room-be/pkg/reading"
)

var (
	ErrNoPendingUpgrade             = errors.New("no pending guest upgrade")
	ErrUpgradeFailed                = errors.New("upgrade failed, your guest session was restored")
	ErrUpgradeFailedContinueAsGuest = errors.New("upgrade failed, you can continue as a guest")
)

const DefaultVerifyDelay = 2 * time.Second

// Marker is written before the identity provider redirect and read back
// afterwards.
type Marker struct {
	GuestID   string    `json:"guestId"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionContext captures the reading a guest was in when the upgrade began.
type SessionContext struct {
	SessionID     string          `json:"sessionId"`
	ParticipantID string          `json:"participantId,omitempty"`
	IsHost        bool            `json:"isHost"`
	Snapshot      reading.Session `json:"snapshot"`
}

type backup struct {
	GuestID string          `json:"guestId"`
	Context *SessionContext `json:"context,omitempty"`
}

type Result struct {
	Migration gateway.MigrationResult
	// Context is the session to re-attach to: the migrated reading on success,
	// the guest's own reading after a restored failure.
	Context    *SessionContext
	Verified   bool
	ReturnPath string
}

type Options struct {
	VerifyDelay time.Duration
	Logger      logger.ILogger
	Clock       func() time.Time
}

type Pipeline struct {
	gw          gateway.Gateway
	resolver    *identity.Resolver
	storage     identity.ClientStorage
	verifyDelay time.Duration
	clock       func() time.Time
	logger      logger.ILogger
}

func NewPipeline(gw gateway.Gateway, resolver *identity.Resolver, opts Options) *Pipeline {
	if opts.VerifyDelay < 0 {
		opts.VerifyDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{
		gw:          gw,
		resolver:    resolver,
		storage:     resolver.Storage(),
		verifyDelay: opts.VerifyDelay,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Prepare records everything Run needs after the redirect: the pending
// marker, the guest backup and, when the guest is mid-reading, the session
// context.
func (p *Pipeline) Prepare(ctx context.Context, guestID, intendedUserID string, sc *SessionContext, returnPath string) error {
	if guestID == "" {
		return fmt.Errorf("prepare upgrade: %w", ErrNoPendingUpgrade)
	}
	marker := Marker{GuestID: guestID, UserID: intendedUserID, CreatedAt: p.clock().UTC()}
	if err := p.put(ctx, identity.KeyPendingMigration, marker); err != nil {
		return err
	}
	if err := p.put(ctx, identity.KeyGuestSessionBackup, backup{GuestID: guestID, Context: sc}); err != nil {
		return err
	}
	if sc != nil {
		if err := p.put(ctx, identity.KeyPendingSessionContext, sc); err != nil {
			return err
		}
	}
	if returnPath != "" {
		if err := p.storage.Set(ctx, identity.KeyReturnPath, returnPath); err != nil {
			return fmt.Errorf("store return path: %w", err)
		}
	}
	return nil
}

// Pending returns the marker left by Prepare, if any.
func (p *Pipeline) Pending(ctx context.Context) (Marker, bool, error) {
	var m Marker
	ok, err := p.get(ctx, identity.KeyPendingMigration, &m)
	if err != nil || !ok {
		return Marker{}, false, err
	}
	return m, m.GuestID != "", nil
}

// Run migrates the pending guest onto user. Every server step is idempotent,
// so a failed run can simply be repeated.
func (p *Pipeline) Run(ctx context.Context, user identity.Identity) (Result, error) {
	marker, ok, err := p.Pending(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrNoPendingUpgrade
	}
	if marker.UserID != "" && marker.UserID != user.ID {
		p.logger.Warn("MIGRATION", "Signed-in user differs from the intended one", map[string]interface{}{
			"intended_user_id": marker.UserID,
			"user_id":          user.ID,
		})
	}

	if err := p.gw.EnsureProfile(ctx, user.ID, user.DisplayName, false); err != nil {
		return p.restore(ctx, marker, fmt.Errorf("materialize profile: %w", err))
	}
	migrated, err := p.gw.MigrateOwnership(ctx, marker.GuestID, user.ID)
	if err != nil {
		return p.restore(ctx, marker, fmt.Errorf("migrate ownership: %w", err))
	}

	p.retireGuest(ctx, marker.GuestID)
	p.resolver.SetAuthenticated(user)
	p.logger.Info("MIGRATION", "Guest upgraded", map[string]interface{}{
		"guest_id":              marker.GuestID,
		"user_id":               user.ID,
		"sessions_migrated":     migrated.SessionsMigrated,
		"participants_migrated": migrated.ParticipantsMigrated,
		"participants_retired":  migrated.ParticipantsRetired,
	})

	result := Result{Migration: migrated, ReturnPath: p.take(ctx, identity.KeyReturnPath)}
	sc, err := p.sessionContext(ctx)
	if err != nil {
		p.logger.Warn("MIGRATION", "Session context unreadable", map[string]interface{}{"error": err.Error()})
		return result, nil
	}
	if sc == nil {
		return result, nil
	}

	result.Context = sc
	result.Verified = p.verify(ctx, sc, user.ID)
	_ = p.storage.Delete(ctx, identity.KeyPendingSessionContext)
	return result, nil
}

func (p *Pipeline) retireGuest(ctx context.Context, guestID string) {
	if err := p.gw.DeleteProfile(ctx, guestID); err != nil {
		p.logger.Warn("MIGRATION", "Guest profile not deleted", map[string]interface{}{"guest_id": guestID, "error": err.Error()})
	}
	if err := p.resolver.ClearGuest(ctx); err != nil {
		p.logger.Warn("MIGRATION", "Guest token not cleared", map[string]interface{}{"guest_id": guestID, "error": err.Error()})
	}
	for _, key := range []string{identity.KeyPendingMigration, identity.KeyGuestSessionBackup} {
		if err := p.storage.Delete(ctx, key); err != nil {
			p.logger.Warn("MIGRATION", "Marker not cleared", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
}

// verify waits for the migrated participant to be readable under the new
// identity. Re-joining before that would insert a duplicate row.
func (p *Pipeline) verify(ctx context.Context, sc *SessionContext, userID string) bool {
	if p.verifyDelay > 0 {
		timer := time.NewTimer(p.verifyDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}

	participant, err := p.gw.FindActiveParticipant(ctx, sc.SessionID, userID)
	if err != nil {
		p.logger.Warn("MIGRATION", "Migrated participant not visible", map[string]interface{}{
			"session_id": sc.SessionID,
			"user_id":    userID,
			"error":      err.Error(),
		})
		return false
	}
	sc.ParticipantID = participant.ID
	return true
}

func (p *Pipeline) restore(ctx context.Context, marker Marker, cause error) (Result, error) {
	p.logger.Error("MIGRATION", "Guest upgrade failed", map[string]interface{}{
		"guest_id": marker.GuestID,
		"error":    cause.Error(),
	})

	var b backup
	ok, err := p.get(ctx, identity.KeyGuestSessionBackup, &b)
	if err != nil || !ok || b.GuestID == "" {
		p.resolver.UseGuest()
		return Result{}, fmt.Errorf("%w: %w", ErrUpgradeFailedContinueAsGuest, cause)
	}
	if err := p.storage.Set(ctx, identity.KeyGuestToken, b.GuestID); err != nil {
		p.resolver.UseGuest()
		return Result{}, fmt.Errorf("%w: %w", ErrUpgradeFailedContinueAsGuest, cause)
	}
	p.resolver.UseGuest()
	return Result{Context: b.Context}, fmt.Errorf("%w: %w", ErrUpgradeFailed, cause)
}

func (p *Pipeline) sessionContext(ctx context.Context) (*SessionContext, error) {
	var sc SessionContext
	ok, err := p.get(ctx, identity.KeyPendingSessionContext, &sc)
	if err != nil || !ok {
		return nil, err
	}
	return &sc, nil
}

func (p *Pipeline) take(ctx context.Context, key string) string {
	v, err := p.storage.Get(ctx, key)
	if err != nil {
		return ""
	}
	_ = p.storage.Delete(ctx, key)
	return v
}

func (p *Pipeline) put(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := p.storage.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (p *Pipeline) get(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, err := p.storage.Get(ctx, key)
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
