package reading

import "time"

const (
	TableSessions     = "sessions"
	TableParticipants = "participants"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a row-level change notification delivered to every
// subscriber of a session, the writer included.
type ChangeEvent struct {
	Table           string       `json:"table"`
	Type            ChangeType   `json:"type"`
	SessionID       string       `json:"sessionId"`
	Session         *Session     `json:"session,omitempty"`
	Participant     *Participant `json:"participant,omitempty"`
	CommitTimestamp time.Time    `json:"commitTimestamp"`
}

func SessionChanged(s Session) ChangeEvent {
	c := s.Clone()
	return ChangeEvent{
		Table:           TableSessions,
		Type:            ChangeUpdate,
		SessionID:       s.ID,
		Session:         &c,
		CommitTimestamp: s.UpdatedAt,
	}
}

func ParticipantChanged(kind ChangeType, p Participant, at time.Time) ChangeEvent {
	return ChangeEvent{
		Table:           TableParticipants,
		Type:            kind,
		SessionID:       p.SessionID,
		Participant:     &p,
		CommitTimestamp: at,
	}
}
