// Package readingroom keeps one browser's copy of a shared reading session in
// step with every other client at the table.
package readingroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/identity"
	"tarot-room-be/pkg/migration"
	"tarot-room-be/pkg/reading"

	"github.com/google/uuid"
)

const (
	DefaultPresenceInterval = 30 * time.Second
	maxNameLength           = 100
)

type Options struct {
	PresenceInterval time.Duration
	VerifyDelay      time.Duration
	Clock            func() time.Time
	Logger           logger.ILogger
}

// attachment is the live link to one session: its subscription plus the
// listener and presence goroutines.
type attachment struct {
	gen    uint64
	cancel context.CancelFunc
	sub    gateway.Subscription
	wg     sync.WaitGroup
}

// Store is safe for concurrent use. Methods never return errors for expected
// failures; they record them in Error instead.
type Store struct {
	gw       gateway.Gateway
	resolver *identity.Resolver
	pipeline *migration.Pipeline
	presence time.Duration
	clock    func() time.Time
	logger   logger.ILogger

	mu            sync.RWMutex
	state         *reading.Session
	participants  []reading.Participant
	participantID string
	self          identity.Identity
	isHost        bool
	loading       bool
	degraded      bool
	err           *StoreError
	live          *attachment
	gen           uint64

	notifyMu sync.Mutex
	changes  chan Change
}

func New(gw gateway.Gateway, resolver *identity.Resolver, opts Options) *Store {
	if opts.PresenceInterval <= 0 {
		opts.PresenceInterval = DefaultPresenceInterval
	}
	if opts.VerifyDelay == 0 {
		opts.VerifyDelay = migration.DefaultVerifyDelay
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Store{
		gw:       gw,
		resolver: resolver,
		pipeline: migration.NewPipeline(gw, resolver, migration.Options{
			VerifyDelay: opts.VerifyDelay,
			Logger:      opts.Logger,
			Clock:       opts.Clock,
		}),
		presence: opts.PresenceInterval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		changes:  make(chan Change, 1),
	}
}

// CreateSession opens a new reading with the caller as host and returns its
// id. When the gateway is unreachable the reading continues locally.
func (s *Store) CreateSession(ctx context.Context, deckID string) string {
	s.begin()
	defer s.finish()
	s.detach()

	self, ok := s.whoami(ctx)
	if !ok {
		return ""
	}
	if !self.Anonymous {
		if err := s.gw.EnsureProfile(ctx, self.ID, self.DisplayName, false); err != nil {
			s.logger.Warn("ROOM", "Host profile not materialized", map[string]interface{}{"user_id": self.ID, "error": err.Error()})
		}
	}

	hostID := self.ID
	session, err := s.gw.InsertSession(ctx, gateway.NewSession{DeckID: deckID, HostUserID: &hostID})
	if err != nil {
		s.logger.Warn("ROOM", "Session insert failed, continuing locally", map[string]interface{}{
			"deck_id": deckID,
			"error":   err.Error(),
		})
		local := reading.NewSession(uuid.NewString(), deckID, &hostID, s.now())
		s.mu.Lock()
		s.state = &local
		s.participants = nil
		s.participantID = ""
		s.self = self
		s.isHost = true
		s.degraded = true
		s.mu.Unlock()
		s.notify(ChangeState | ChangeParticipants | ChangeStatus)
		return local.ID
	}

	participant, err := s.gw.InsertParticipant(ctx, newParticipant(session.ID, self))
	if err != nil {
		s.logger.Warn("ROOM", "Host participant not recorded", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
	isHost := session.HostUserID != nil && *session.HostUserID == self.ID
	if !isHost {
		s.logger.Warn("ROOM", "Stored session does not name the creator as host", map[string]interface{}{"session_id": session.ID})
	}
	s.attach(ctx, session, participant.ID, self, isHost)
	return session.ID
}

// JoinSession attaches to an existing active reading. Joining again with the
// same identity reuses the active participant row.
func (s *Store) JoinSession(ctx context.Context, sessionID string) bool {
	s.begin()
	defer s.finish()
	s.detach()

	self, ok := s.whoami(ctx)
	if !ok {
		return false
	}
	return s.join(ctx, sessionID, self)
}

func (s *Store) join(ctx context.Context, sessionID string, self identity.Identity) bool {
	session, err := s.gw.GetSession(ctx, sessionID)
	if err != nil || !session.IsActive {
		if err == nil || errors.Is(err, gateway.ErrNotFound) {
			s.setError(KindNotFound, msgSessionNotFound)
			return false
		}
		s.logger.Warn("ROOM", "Session lookup failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		s.setError(KindTransient, "could not load the session, please retry")
		return false
	}

	participant, err := s.gw.FindActiveParticipant(ctx, session.ID, self.ID)
	if errors.Is(err, gateway.ErrNotFound) {
		participant, err = s.gw.InsertParticipant(ctx, newParticipant(session.ID, self))
	}
	if err != nil {
		s.logger.Warn("ROOM", "Join failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		s.setError(KindTransient, "could not join the session, please retry")
		return false
	}

	isHost := session.HostUserID != nil && *session.HostUserID == self.ID
	return s.attach(ctx, session, participant.ID, self, isHost)
}

// UpdateSession writes the fields present in patch. The host applies the
// change as soon as the write is acknowledged; everyone else waits for the
// broadcast echo.
func (s *Store) UpdateSession(ctx context.Context, patch reading.Patch) {
	s.mu.RLock()
	if s.state == nil {
		s.mu.RUnlock()
		s.setError(KindValidation, "no session is open")
		return
	}
	current := s.state.Clone()
	self, isHost, degraded, gen := s.self, s.isHost, s.degraded, s.gen
	s.mu.RUnlock()

	if err := patch.Validate(current); err != nil {
		s.setError(KindValidation, err.Error())
		return
	}
	if patch.IsEmpty() {
		return
	}
	if degraded {
		s.applyLocal(gen, patch)
		return
	}

	committed, err := s.gw.UpdateSession(ctx, current.ID, gateway.Actor{ID: self.ID, Anonymous: self.Anonymous}, patch)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrPermissionDenied) && self.Anonymous:
		s.logger.Info("ROOM", "Guest write rejected, applying locally", map[string]interface{}{"session_id": current.ID})
		s.applyLocal(gen, patch)
		return
	case errors.Is(err, gateway.ErrPermissionDenied):
		s.setError(KindValidation, "you are not allowed to change this session")
		return
	case errors.Is(err, gateway.ErrNotFound):
		s.setError(KindNotFound, msgSessionNotFound)
		return
	case errors.Is(err, gateway.ErrInvalid):
		s.setError(KindValidation, err.Error())
		return
	default:
		s.logger.Warn("ROOM", "Session update failed", map[string]interface{}{"session_id": current.ID, "error": err.Error()})
		s.setError(KindTransient, "could not save the change, please retry")
		return
	}

	if !isHost {
		return
	}
	s.mu.Lock()
	if s.gen != gen || s.state == nil {
		s.mu.Unlock()
		return
	}
	next := patch.Apply(*s.state)
	next.UpdatedAt = laterOf(s.state.UpdatedAt, committed.UpdatedAt)
	s.state = &next
	s.mu.Unlock()
	s.notify(ChangeState)
}

func (s *Store) applyLocal(gen uint64, patch reading.Patch) {
	s.mu.Lock()
	if s.gen != gen || s.state == nil {
		s.mu.Unlock()
		return
	}
	next := patch.Apply(*s.state)
	next.UpdatedAt = s.stamp(s.state.UpdatedAt)
	s.state = &next
	s.mu.Unlock()
	s.notify(ChangeState)
}

// LeaveSession detaches from the reading and marks the participant inactive.
// The deactivation is best effort.
func (s *Store) LeaveSession(ctx context.Context) {
	s.mu.RLock()
	participantID, degraded := s.participantID, s.degraded
	s.mu.RUnlock()

	s.detach()
	if participantID != "" && !degraded {
		if err := s.gw.DeactivateParticipant(ctx, participantID); err != nil {
			s.logger.Warn("ROOM", "Participant not deactivated", map[string]interface{}{
				"participant_id": participantID,
				"error":          err.Error(),
			})
		}
	}
	s.clearSession()
}

// SetGuestName renames the local guest participant.
func (s *Store) SetGuestName(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	self, ok := s.whoami(ctx)
	if !ok {
		return
	}
	if !self.Anonymous {
		s.setError(KindValidation, "only guests can change their display name")
		return
	}
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		s.setError(KindValidation, fmt.Sprintf("name must be between 1 and %d characters", maxNameLength))
		return
	}

	s.mu.RLock()
	participantID, degraded := s.participantID, s.degraded
	s.mu.RUnlock()

	if participantID != "" && !degraded {
		if _, err := s.gw.RenameParticipant(ctx, participantID, name); err != nil {
			if errors.Is(err, gateway.ErrInvalid) {
				s.setError(KindValidation, err.Error())
				return
			}
			s.logger.Warn("ROOM", "Rename failed", map[string]interface{}{"participant_id": participantID, "error": err.Error()})
			s.setError(KindTransient, "could not change your name, please retry")
			return
		}
	}

	s.mu.Lock()
	s.self.DisplayName = name
	for i := range s.participants {
		if s.participants[i].ID == participantID {
			s.participants[i].Name = reading.StringPtr(name)
		}
	}
	s.mu.Unlock()
	s.notify(ChangeParticipants)
}

// BeginGuestUpgrade stores the markers the upgrade needs to survive the
// identity provider redirect.
func (s *Store) BeginGuestUpgrade(ctx context.Context, intendedUserID, returnPath string) bool {
	self, ok := s.whoami(ctx)
	if !ok {
		return false
	}
	if !self.Anonymous {
		s.setError(KindMigration, "already signed in")
		return false
	}
	return s.prepareUpgrade(ctx, self.ID, intendedUserID, returnPath)
}

func (s *Store) prepareUpgrade(ctx context.Context, guestID, intendedUserID, returnPath string) bool {
	if err := s.pipeline.Prepare(ctx, guestID, intendedUserID, s.sessionContext(), returnPath); err != nil {
		s.logger.Warn("ROOM", "Upgrade markers not stored", map[string]interface{}{"guest_id": guestID, "error": err.Error()})
		s.setError(KindMigration, "could not prepare the account upgrade")
		return false
	}
	return true
}

// UpgradeGuestAccount moves the guest's readings onto user and re-attaches to
// the reading that was open, once the migrated participant is visible.
func (s *Store) UpgradeGuestAccount(ctx context.Context, user identity.Identity) bool {
	s.begin()
	defer s.finish()

	_, pending, err := s.pipeline.Pending(ctx)
	if err != nil {
		s.setError(KindMigration, "could not read the pending upgrade")
		return false
	}
	if !pending {
		// Upgraded without a redirect: the guest token is still in storage.
		guestID, err := s.resolver.Storage().Get(ctx, identity.KeyGuestToken)
		if err != nil || guestID == "" {
			s.setError(KindMigration, "there is no guest session to upgrade")
			return false
		}
		if !s.prepareUpgrade(ctx, guestID, user.ID, "") {
			return false
		}
	}

	previous := s.sessionContext()
	// The participant row stays active: migration re-points it.
	s.detach()

	user.Anonymous = false
	result, err := s.pipeline.Run(ctx, user)
	if err != nil {
		s.logger.Warn("ROOM", "Guest upgrade failed", map[string]interface{}{"user_id": user.ID, "error": err.Error()})
		restoreFrom := previous
		if errors.Is(err, migration.ErrUpgradeFailed) && result.Context != nil {
			restoreFrom = result.Context
		}
		s.rejoinAsGuest(ctx, restoreFrom)

		message := migration.ErrUpgradeFailedContinueAsGuest.Error()
		if errors.Is(err, migration.ErrUpgradeFailed) {
			message = migration.ErrUpgradeFailed.Error()
		}
		s.setError(KindMigration, message)
		return false
	}

	s.mu.Lock()
	s.self = user
	s.mu.Unlock()

	switch {
	case result.Context == nil:
		s.clearSession()
	case !result.Verified:
		s.clearSession()
		s.setError(KindMigration, "your reading is still moving to your account, please reopen it")
	default:
		s.join(ctx, result.Context.SessionID, user)
	}
	return true
}

func (s *Store) rejoinAsGuest(ctx context.Context, sc *migration.SessionContext) {
	if sc == nil {
		s.clearSession()
		return
	}
	guest, err := s.resolver.GuestIdentity(ctx)
	if err == nil && s.join(ctx, sc.SessionID, guest) {
		return
	}

	// Fall back to the snapshot taken before the redirect.
	snapshot := sc.Snapshot.Clone()
	s.mu.Lock()
	s.state = &snapshot
	s.participants = nil
	s.participantID = ""
	s.self = guest
	s.isHost = sc.IsHost
	s.degraded = true
	s.mu.Unlock()
	s.notify(ChangeState | ChangeParticipants)
}

// Reconnect re-subscribes after the realtime channel failed and catches up
// with the stored row.
func (s *Store) Reconnect(ctx context.Context) bool {
	s.mu.RLock()
	if s.state == nil || s.degraded {
		s.mu.RUnlock()
		return false
	}
	local := s.state.Clone()
	participantID, self, isHost := s.participantID, s.self, s.isHost
	s.mu.RUnlock()

	s.detach()
	remote, err := s.gw.GetSession(ctx, local.ID)
	if err != nil || !remote.IsActive {
		if err == nil || errors.Is(err, gateway.ErrNotFound) {
			s.setError(KindNotFound, msgSessionNotFound)
			return false
		}
		s.setError(KindTransient, "could not reconnect, please retry")
		return false
	}

	s.clearError()
	return s.attach(ctx, reading.Reconcile(local, remote, isHost), participantID, self, isHost)
}

// attach publishes session as the live reading and starts its listener and
// presence goroutines. It reports false when a detach superseded it while the
// subscription was being opened.
func (s *Store) attach(ctx context.Context, session reading.Session, participantID string, self identity.Identity, isHost bool) bool {
	state := session.Clone()
	bg, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.gen++
	a := &attachment{gen: s.gen, cancel: cancel}
	s.state = &state
	s.participants = nil
	s.participantID = participantID
	s.self = self
	s.isHost = isHost
	s.degraded = false
	s.live = a
	s.mu.Unlock()

	sub, err := s.gw.Subscribe(bg, session.ID)

	s.mu.Lock()
	if s.gen != a.gen {
		s.mu.Unlock()
		if err == nil {
			_ = sub.Close()
		}
		s.logger.Info("ROOM", "Attach superseded while subscribing", map[string]interface{}{"session_id": session.ID})
		return false
	}
	if err == nil {
		a.sub = sub
		a.wg.Add(1)
		go s.listen(bg, a, sub)
	}
	if participantID != "" {
		a.wg.Add(1)
		go s.heartbeat(bg, a, participantID)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("ROOM", "Subscribe failed", map[string]interface{}{"session_id": session.ID, "error": err.Error()})
		s.setError(KindRealtime, "live updates are unavailable")
	}
	s.reloadParticipants(ctx, a.gen, session.ID)
	s.notify(ChangeState | ChangeStatus)
	return true
}

// detach stops the live link without touching the participant row.
func (s *Store) detach() {
	s.mu.Lock()
	a := s.live
	s.live = nil
	s.gen++
	var sub gateway.Subscription
	if a != nil {
		sub = a.sub
	}
	s.mu.Unlock()
	if a == nil {
		return
	}

	a.cancel()
	if sub != nil {
		_ = sub.Close()
	}
	a.wg.Wait()
}

func (s *Store) listen(ctx context.Context, a *attachment, sub gateway.Subscription) {
	defer a.wg.Done()
	for ev := range sub.Events() {
		s.handle(ctx, a.gen, ev)
	}

	status := sub.Status()
	if ctx.Err() != nil || status == gateway.StatusClosed || !s.current(a.gen) {
		return
	}
	s.logger.Warn("ROOM", "Realtime channel ended", map[string]interface{}{"status": string(status)})
	s.setError(KindRealtime, fmt.Sprintf("live updates stopped (%s)", status))
}

func (s *Store) handle(ctx context.Context, gen uint64, ev reading.ChangeEvent) {
	switch ev.Table {
	case reading.TableSessions:
		if ev.Session == nil {
			return
		}
		s.mu.Lock()
		if s.gen != gen || s.state == nil || s.state.ID != ev.Session.ID {
			s.mu.Unlock()
			return
		}
		merged := reading.Reconcile(*s.state, *ev.Session, s.isHost)
		s.state = &merged
		s.mu.Unlock()
		s.notify(ChangeState)
	case reading.TableParticipants:
		s.reloadParticipants(ctx, gen, ev.SessionID)
	}
}

func (s *Store) heartbeat(ctx context.Context, a *attachment, participantID string) {
	defer a.wg.Done()
	ticker := time.NewTicker(s.presence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.gw.TouchParticipant(ctx, participantID); err != nil && ctx.Err() == nil {
				s.logger.Warn("ROOM", "Presence refresh failed", map[string]interface{}{
					"participant_id": participantID,
					"error":          err.Error(),
				})
			}
		}
	}
}

func (s *Store) reloadParticipants(ctx context.Context, gen uint64, sessionID string) {
	list, err := s.gw.ListParticipants(ctx, sessionID)
	if err != nil {
		s.logger.Warn("ROOM", "Participant reload failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.participants = list
	s.mu.Unlock()
	s.notify(ChangeParticipants)
}

func (s *Store) sessionContext() *migration.SessionContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil
	}
	return &migration.SessionContext{
		SessionID:     s.state.ID,
		ParticipantID: s.participantID,
		IsHost:        s.isHost,
		Snapshot:      s.state.Clone(),
	}
}

func (s *Store) whoami(ctx context.Context) (identity.Identity, bool) {
	self, err := s.resolver.Current(ctx)
	if err != nil {
		s.logger.Warn("ROOM", "Identity unavailable", map[string]interface{}{"error": err.Error()})
		s.setError(KindTransient, "could not determine who you are, please retry")
		return identity.Identity{}, false
	}
	return self, true
}

func (s *Store) clearSession() {
	s.mu.Lock()
	s.state = nil
	s.participants = nil
	s.participantID = ""
	s.isHost = false
	s.degraded = false
	s.mu.Unlock()
	s.notify(ChangeState | ChangeParticipants)
}

func (s *Store) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen == gen
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()
	s.notify(ChangeStatus)
}

func (s *Store) finish() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	s.notify(ChangeStatus)
}

func (s *Store) setError(kind ErrorKind, message string) {
	s.mu.Lock()
	s.err = &StoreError{Kind: kind, Message: message}
	s.mu.Unlock()
	s.notify(ChangeStatus)
}

func (s *Store) clearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// notify merges c into the pending notification. It never blocks.
func (s *Store) notify(c Change) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	select {
	case pending := <-s.changes:
		c |= pending
	default:
	}
	s.changes <- c
}

func (s *Store) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// stamp returns a local timestamp strictly after prev.
func (s *Store) stamp(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func newParticipant(sessionID string, self identity.Identity) gateway.NewParticipant {
	in := gateway.NewParticipant{SessionID: sessionID}
	id := self.ID
	if self.Anonymous {
		in.AnonymousID = &id
	} else {
		in.UserID = &id
	}
	if self.DisplayName != "" {
		in.Name = reading.StringPtr(self.DisplayName)
	}
	return in
}
