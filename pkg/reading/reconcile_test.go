package reading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sessionAt(at time.Time, cards ...SelectedCard) Session {
	s := NewSession("s1", "rider-waite", StringPtr("host"), at)
	s.SelectedCards = cards
	if s.SelectedCards == nil {
		s.SelectedCards = []SelectedCard{}
	}
	return s
}

func TestReconcile(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	card := SelectedCard{CardID: "the-fool", Position: "past"}
	other := SelectedCard{CardID: "the-tower", Position: "present"}

	tests := []struct {
		name      string
		local     Session
		remote    Session
		isHost    bool
		wantCards []SelectedCard
		wantAt    time.Time
	}{
		{
			name:      "stale empty echo keeps local cards",
			local:     sessionAt(t0.Add(time.Second), card),
			remote:    sessionAt(t0),
			wantCards: []SelectedCard{card},
			wantAt:    t0.Add(time.Second),
		},
		{
			name:      "equal timestamp empty echo keeps local cards",
			local:     sessionAt(t0, card),
			remote:    sessionAt(t0),
			wantCards: []SelectedCard{card},
			wantAt:    t0,
		},
		{
			name:      "newer empty state clears cards",
			local:     sessionAt(t0, card),
			remote:    sessionAt(t0.Add(time.Second)),
			wantCards: []SelectedCard{},
			wantAt:    t0.Add(time.Second),
		},
		{
			name:      "host is not guarded",
			local:     sessionAt(t0.Add(time.Second), card),
			remote:    sessionAt(t0),
			isHost:    true,
			wantCards: []SelectedCard{},
			wantAt:    t0.Add(time.Second),
		},
		{
			name:      "non-empty remote replaces local",
			local:     sessionAt(t0.Add(time.Second), card),
			remote:    sessionAt(t0, other),
			wantCards: []SelectedCard{other},
			wantAt:    t0.Add(time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.local, tt.remote, tt.isHost)
			assert.Equal(t, tt.wantCards, got.SelectedCards)
			assert.True(t, tt.wantAt.Equal(got.UpdatedAt), "updatedAt = %v, want %v", got.UpdatedAt, tt.wantAt)
		})
	}
}

func TestReconcileRemoteWinsOtherFields(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := sessionAt(t0.Add(time.Second), SelectedCard{CardID: "the-fool", Position: "past"})
	local.Question = "old question"

	remote := sessionAt(t0)
	remote.Question = "will it rain?"
	remote.ReadingStep = StepDrawing
	remote.ZoomLevel = 2

	got := Reconcile(local, remote, false)
	assert.Equal(t, "will it rain?", got.Question)
	assert.Equal(t, StepDrawing, got.ReadingStep)
	assert.Equal(t, 2.0, got.ZoomLevel)
	assert.Len(t, got.SelectedCards, 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := sessionAt(t0, SelectedCard{CardID: "the-fool", Position: "past"})
	remote := sessionAt(t0.Add(time.Millisecond), SelectedCard{CardID: "the-star", Position: "future"})
	remote.Question = "q"

	once := Reconcile(local, remote, false)
	twice := Reconcile(once, remote, false)
	assert.Equal(t, once, twice)
}

func TestReconcileDoesNotAlias(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := sessionAt(t0.Add(time.Second), SelectedCard{CardID: "the-fool", Position: "past"})
	remote := sessionAt(t0)

	got := Reconcile(local, remote, false)
	got.SelectedCards[0].CardID = "mutated"
	assert.Equal(t, "the-fool", local.SelectedCards[0].CardID)
}
