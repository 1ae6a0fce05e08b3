package reading

import "time"

// Participant is one client's membership in a session. Exactly one of UserID
// and AnonymousID is set.
type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	UserID      *string   `json:"userId,omitempty"`
	AnonymousID *string   `json:"anonymousId,omitempty"`
	Name        *string   `json:"name,omitempty"`
	IsActive    bool      `json:"isActive"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// IdentityID returns whichever identity reference the row carries.
func (p Participant) IdentityID() string {
	if p.UserID != nil {
		return *p.UserID
	}
	if p.AnonymousID != nil {
		return *p.AnonymousID
	}
	return ""
}

func (p Participant) IsGuest() bool {
	return p.UserID == nil && p.AnonymousID != nil
}
