// Package identity resolves who the current caller is: an authenticated user
// or a guest whose token lives in durable client storage.
package identity

import "errors"

// Durable client-storage keys shared by the resolver, the store and the
// migration pipeline.
const (
	KeyGuestToken            = "guest_token"
	KeyPendingMigration      = "pending_migration"
	KeyPendingSessionContext = "pending_session_context"
	KeyGuestSessionBackup    = "guest_session_backup"
	KeyReturnPath            = "return_path"
	KeyRetiredGuest          = "retired_guest_token"
)

const GuestPrefix = "guest-"

var ErrNotFound = errors.New("key not found")

type Identity struct {
	ID          string `json:"id"`
	Anonymous   bool   `json:"anonymous"`
	DisplayName string `json:"displayName"`
}

// IsGuestID reports whether an identity id was minted for a guest.
func IsGuestID(id string) bool {
	return len(id) > len(GuestPrefix) && id[:len(GuestPrefix)] == GuestPrefix
}
