package events

import "time"

// Reading room lifecycle events, published under events.<TYPE>.
const (
	SessionCreated     = "SESSION_CREATED"
	SessionDeactivated = "SESSION_DEACTIVATED"
	ParticipantJoined  = "PARTICIPANT_JOINED"
	ParticipantLeft    = "PARTICIPANT_LEFT"
	GuestMigrated      = "GUEST_MIGRATED"
)

func NewSessionCreated(sessionID string, hostUserID *string, at time.Time) BaseEvent {
	data := map[string]interface{}{"session_id": sessionID}
	if hostUserID != nil {
		data["host_user_id"] = *hostUserID
	}
	return BaseEvent{Type: SessionCreated, Data: data, OccurredAt: at}
}

func NewSessionDeactivated(sessionID, reason string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       SessionDeactivated,
		Data:       map[string]interface{}{"session_id": sessionID, "reason": reason},
		OccurredAt: at,
	}
}

func NewParticipantJoined(sessionID, participantID, identityID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: ParticipantJoined,
		Data: map[string]interface{}{
			"session_id":     sessionID,
			"participant_id": participantID,
			"identity_id":    identityID,
		},
		OccurredAt: at,
	}
}

func NewParticipantLeft(sessionID, participantID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: ParticipantLeft,
		Data: map[string]interface{}{
			"session_id":     sessionID,
			"participant_id": participantID,
		},
		OccurredAt: at,
	}
}

func NewGuestMigrated(guestID, userID string, sessions, participants int, at time.Time) BaseEvent {
	return BaseEvent{
		Type: GuestMigrated,
		Data: map[string]interface{}{
			"guest_id":              guestID,
			"user_id":               userID,
			"sessions_migrated":     sessions,
			"participants_migrated": participants,
		},
		OccurredAt: at,
	}
}

// StringField reads a string payload value; JSON round trips keep strings as strings.
func StringField(e Event, key string) string {
	v, _ := e.Payload()[key].(string)
	return v
}
