package reading

import (
	"encoding/json"
	"fmt"
)

// Opt marks a field as present in a Patch. Absent fields are omitted on the
// wire and never written.
type Opt[T any] struct {
	Set   bool
	Value T
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Value: v}
}

func (o Opt[T]) IsZero() bool {
	return !o.Set
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

// Patch is a partial update of the logical session fields.
type Patch struct {
	DeckID             Opt[string]              `json:"deckId,omitzero"`
	SelectedLayout     Opt[*string]             `json:"selectedLayout,omitzero"`
	Question           Opt[string]              `json:"question,omitzero"`
	ReadingStep        Opt[ReadingStep]         `json:"readingStep,omitzero"`
	SelectedCards      Opt[[]SelectedCard]      `json:"selectedCards,omitzero"`
	Interpretation     Opt[string]              `json:"interpretation,omitzero"`
	ZoomLevel          Opt[float64]             `json:"zoomLevel,omitzero"`
	PanOffset          Opt[Vec2]                `json:"panOffset,omitzero"`
	ZoomFocus          Opt[*Vec2]               `json:"zoomFocus,omitzero"`
	ShuffledDeck       Opt[[]string]            `json:"shuffledDeck,omitzero"`
	LoadingStates      Opt[*LoadingStates]      `json:"loadingStates,omitzero"`
	SharedModalState   Opt[*SharedModalState]   `json:"sharedModalState,omitzero"`
	DeckSelectionState Opt[*DeckSelectionState] `json:"deckSelectionState,omitzero"`
}

func (p Patch) IsEmpty() bool {
	return !p.DeckID.Set && !p.SelectedLayout.Set && !p.Question.Set && !p.ReadingStep.Set &&
		!p.SelectedCards.Set && !p.Interpretation.Set && !p.ZoomLevel.Set && !p.PanOffset.Set &&
		!p.ZoomFocus.Set && !p.ShuffledDeck.Set && !p.LoadingStates.Set &&
		!p.SharedModalState.Set && !p.DeckSelectionState.Set
}

// Validate checks the patch against the state it will be applied to.
func (p Patch) Validate(current Session) error {
	if p.ReadingStep.Set && !p.ReadingStep.Value.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStep, p.ReadingStep.Value)
	}
	if p.ZoomLevel.Set && p.ZoomLevel.Value <= 0 {
		return fmt.Errorf("zoom level must be positive, got %v", p.ZoomLevel.Value)
	}

	layout := current.SelectedLayout
	if p.SelectedLayout.Set {
		layout = p.SelectedLayout.Value
	}
	cards := len(current.SelectedCards)
	if p.SelectedCards.Set {
		cards = len(p.SelectedCards.Value)
	}
	if p.SelectedLayout.Set || p.SelectedCards.Set {
		return CheckCapacity(layout, cards)
	}
	return nil
}

// Apply returns a copy of s with every present field of the patch written.
// UpdatedAt is left to the caller.
func (p Patch) Apply(s Session) Session {
	out := s.Clone()
	if p.DeckID.Set {
		out.DeckID = p.DeckID.Value
	}
	if p.SelectedLayout.Set {
		out.SelectedLayout = cloneString(p.SelectedLayout.Value)
	}
	if p.Question.Set {
		out.Question = p.Question.Value
	}
	if p.ReadingStep.Set {
		out.ReadingStep = p.ReadingStep.Value
	}
	if p.SelectedCards.Set {
		out.SelectedCards = cloneCards(p.SelectedCards.Value)
	}
	if p.Interpretation.Set {
		out.Interpretation = p.Interpretation.Value
	}
	if p.ZoomLevel.Set {
		out.ZoomLevel = ClampZoom(p.ZoomLevel.Value)
	}
	if p.PanOffset.Set {
		out.PanOffset = p.PanOffset.Value
	}
	if p.ZoomFocus.Set {
		out.ZoomFocus = nil
		if p.ZoomFocus.Value != nil {
			f := *p.ZoomFocus.Value
			out.ZoomFocus = &f
		}
	}
	if p.ShuffledDeck.Set {
		out.ShuffledDeck = append([]string(nil), p.ShuffledDeck.Value...)
	}
	if p.LoadingStates.Set {
		out.LoadingStates = nil
		if p.LoadingStates.Value != nil {
			ls := *p.LoadingStates.Value
			out.LoadingStates = &ls
		}
	}
	if p.SharedModalState.Set {
		out.SharedModalState = nil
		if p.SharedModalState.Value != nil {
			tmp := Session{SharedModalState: p.SharedModalState.Value}.Clone()
			out.SharedModalState = tmp.SharedModalState
		}
	}
	if p.DeckSelectionState.Set {
		out.DeckSelectionState = nil
		if p.DeckSelectionState.Value != nil {
			ds := *p.DeckSelectionState.Value
			out.DeckSelectionState = &ds
		}
	}
	return out
}
