// Package reading holds the shared table state of a tarot reading session and
// the pure rules for patching and reconciling it.
package reading

import (
	"time"
)

type ReadingStep string

const (
	StepSetup          ReadingStep = "setup"
	StepAskQuestion    ReadingStep = "ask-question"
	StepDrawing        ReadingStep = "drawing"
	StepInterpretation ReadingStep = "interpretation"
)

func (s ReadingStep) Valid() bool {
	switch s {
	case StepSetup, StepAskQuestion, StepDrawing, StepInterpretation:
		return true
	}
	return false
}

const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	DefaultZoom = 1.0
)

// ClampZoom keeps a zoom level inside [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type SelectedCard struct {
	CardID     string   `json:"cardId"`
	Position   string   `json:"position"`
	IsReversed bool     `json:"isReversed"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
}

type LoadingStates struct {
	IsShuffling                bool   `json:"isShuffling"`
	IsGeneratingInterpretation bool   `json:"isGeneratingInterpretation"`
	TriggeredBy                string `json:"triggeredBy,omitempty"`
}

type SharedModalState struct {
	IsOpen      bool   `json:"isOpen"`
	CardIndex   *int   `json:"cardIndex,omitempty"`
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

type DeckSelectionState struct {
	IsOpen         bool   `json:"isOpen"`
	SelectedDeckID string `json:"selectedDeckId,omitempty"`
	TriggeredBy    string `json:"triggeredBy,omitempty"`
}

// Session is the shared table state of one reading.
type Session struct {
	ID                 string              `json:"id"`
	HostUserID         *string             `json:"hostUserId"`
	OriginalGuestID    *string             `json:"originalGuestId,omitempty"`
	DeckID             string              `json:"deckId"`
	SelectedLayout     *string             `json:"selectedLayout"`
	Question           string              `json:"question"`
	ReadingStep        ReadingStep         `json:"readingStep"`
	SelectedCards      []SelectedCard      `json:"selectedCards"`
	Interpretation     string              `json:"interpretation"`
	ZoomLevel          float64             `json:"zoomLevel"`
	PanOffset          Vec2                `json:"panOffset"`
	ZoomFocus          *Vec2               `json:"zoomFocus,omitempty"`
	ShuffledDeck       []string            `json:"shuffledDeck,omitempty"`
	LoadingStates      *LoadingStates      `json:"loadingStates,omitempty"`
	SharedModalState   *SharedModalState   `json:"sharedModalState,omitempty"`
	DeckSelectionState *DeckSelectionState `json:"deckSelectionState,omitempty"`
	IsActive           bool                `json:"isActive"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// NewSession returns the initial state of a freshly created reading.
func NewSession(id, deckID string, hostUserID *string, now time.Time) Session {
	return Session{
		ID:            id,
		HostUserID:    cloneString(hostUserID),
		DeckID:        deckID,
		ReadingStep:   StepSetup,
		SelectedCards: []SelectedCard{},
		ZoomLevel:     DefaultZoom,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy so callers never share slices or pointers with the store.
func (s Session) Clone() Session {
	out := s
	out.HostUserID = cloneString(s.HostUserID)
	out.OriginalGuestID = cloneString(s.OriginalGuestID)
	out.SelectedLayout = cloneString(s.SelectedLayout)
	out.SelectedCards = cloneCards(s.SelectedCards)
	if s.ZoomFocus != nil {
		f := *s.ZoomFocus
		out.ZoomFocus = &f
	}
	if s.ShuffledDeck != nil {
		out.ShuffledDeck = append([]string(nil), s.ShuffledDeck...)
	}
	if s.LoadingStates != nil {
		ls := *s.LoadingStates
		out.LoadingStates = &ls
	}
	if s.SharedModalState != nil {
		ms := *s.SharedModalState
		if ms.CardIndex != nil {
			idx := *ms.CardIndex
			ms.CardIndex = &idx
		}
		out.SharedModalState = &ms
	}
	if s.DeckSelectionState != nil {
		ds := *s.DeckSelectionState
		out.DeckSelectionState = &ds
	}
	return out
}

func cloneCards(cards []SelectedCard) []SelectedCard {
	if cards == nil {
		return []SelectedCard{}
	}
	out := make([]SelectedCard, len(cards))
	for i, c := range cards {
		out[i] = c
		if c.X != nil {
			x := *c.X
			out[i].X = &x
		}
		if c.Y != nil {
			y := *c.Y
			out[i].Y = &y
		}
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a small helper for nullable string fields.
func StringPtr(s string) *string {
	return &s
}
