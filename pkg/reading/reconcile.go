package reading

// CardGuardApplies reports whether an inbound state must not replace the local
// card sequence: a non-host holding cards receives an empty sequence that is
// not newer than what it already has. This is the stale-echo hazard where an
// out-of-order broadcast would wipe a card that was just placed.
func CardGuardApplies(local, remote Session, isHost bool) bool {
	if isHost {
		return false
	}
	if len(local.SelectedCards) == 0 || len(remote.SelectedCards) != 0 {
		return false
	}
	return !remote.UpdatedAt.After(local.UpdatedAt)
}

// Reconcile merges an inbound row into local state. The remote value wins for
// every field except the guarded card sequence. Reconciling the same remote
// row twice yields the same result, so a client receiving its own write back
// is harmless.
func Reconcile(local, remote Session, isHost bool) Session {
	merged := remote.Clone()
	if CardGuardApplies(local, remote, isHost) {
		merged.SelectedCards = cloneCards(local.SelectedCards)
	}
	if local.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = local.UpdatedAt
	}
	return merged
}
