package readingroom

import (
	"context"

	"tarot-room-be/pkg/reading"
)

// State returns a copy of the current session, or false when none is open.
func (s *Store) State() (reading.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return reading.Session{}, false
	}
	return s.state.Clone(), true
}

func (s *Store) Participants() []reading.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reading.Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *Store) ParticipantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantID
}

func (s *Store) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHost
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Degraded reports a local-only session that no other client can see.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

func (s *Store) Error() *StoreError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err == nil {
		return nil
	}
	e := *s.err
	return &e
}

// IsGuest is true whenever no authenticated identity is present, whether or
// not a participant row exists yet.
func (s *Store) IsGuest() bool {
	s.mu.RLock()
	self := s.self
	s.mu.RUnlock()
	if self.ID != "" {
		return self.Anonymous
	}
	return s.resolver.IsAnonymous(context.Background())
}

// Changes signals state, participant and status changes. Notifications
// coalesce while the receiver is busy.
func (s *Store) Changes() <-chan Change {
	return s.changes
}
