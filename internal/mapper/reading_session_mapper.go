package mapper

import (
	"encoding/json"

	"tarot-room-be/internal/entity"
	"tarot-room-be/internal/model"
	"tarot-room-be/pkg/reading"

	"gorm.io/datatypes"
)

type ReadingSessionMapper struct{}

func NewReadingSessionMapper() *ReadingSessionMapper {
	return &ReadingSessionMapper{}
}

func (m *ReadingSessionMapper) ToEntity(s *model.ReadingSession) (*entity.ReadingSession, error) {
	if s == nil {
		return nil, nil
	}

	e := &entity.ReadingSession{
		Id:              s.Id,
		HostUserId:      s.HostUserId,
		OriginalGuestId: s.OriginalGuestId,
		DeckId:          s.DeckId,
		SelectedLayout:  s.SelectedLayout,
		Question:        s.Question,
		ReadingStep:     reading.ReadingStep(s.ReadingStep),
		Interpretation:  s.Interpretation,
		ZoomLevel:       s.ZoomLevel,
		IsActive:        s.IsActive,
		Revision:        s.Revision,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}

	columns := []struct {
		raw  datatypes.JSON
		dest interface{}
	}{
		{s.SelectedCards, &e.SelectedCards},
		{s.PanOffset, &e.PanOffset},
		{s.ZoomFocus, &e.ZoomFocus},
		{s.ShuffledDeck, &e.ShuffledDeck},
		{s.LoadingStates, &e.LoadingStates},
		{s.SharedModalState, &e.SharedModalState},
		{s.DeckSelectionState, &e.DeckSelectionState},
	}
	for _, c := range columns {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dest); err != nil {
			return nil, err
		}
	}
	if e.SelectedCards == nil {
		e.SelectedCards = []reading.SelectedCard{}
	}
	return e, nil
}

func (m *ReadingSessionMapper) ToModel(e *entity.ReadingSession) (*model.ReadingSession, error) {
	if e == nil {
		return nil, nil
	}

	cards := e.SelectedCards
	if cards == nil {
		cards = []reading.SelectedCard{}
	}
	s := &model.ReadingSession{
		Id:              e.Id,
		HostUserId:      e.HostUserId,
		OriginalGuestId: e.OriginalGuestId,
		DeckId:          e.DeckId,
		SelectedLayout:  e.SelectedLayout,
		Question:        e.Question,
		ReadingStep:     string(e.ReadingStep),
		Interpretation:  e.Interpretation,
		ZoomLevel:       e.ZoomLevel,
		IsActive:        e.IsActive,
		Revision:        e.Revision,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}

	var err error
	if s.SelectedCards, err = jsonColumn(cards); err != nil {
		return nil, err
	}
	if s.PanOffset, err = jsonColumn(e.PanOffset); err != nil {
		return nil, err
	}
	if s.ZoomFocus, err = nullableJSONColumn(e.ZoomFocus, e.ZoomFocus == nil); err != nil {
		return nil, err
	}
	if s.ShuffledDeck, err = nullableJSONColumn(e.ShuffledDeck, e.ShuffledDeck == nil); err != nil {
		return nil, err
	}
	if s.LoadingStates, err = nullableJSONColumn(e.LoadingStates, e.LoadingStates == nil); err != nil {
		return nil, err
	}
	if s.SharedModalState, err = nullableJSONColumn(e.SharedModalState, e.SharedModalState == nil); err != nil {
		return nil, err
	}
	if s.DeckSelectionState, err = nullableJSONColumn(e.DeckSelectionState, e.DeckSelectionState == nil); err != nil {
		return nil, err
	}
	return s, nil
}

// ToReading exposes the row as the shared table state clients see.
func (m *ReadingSessionMapper) ToReading(e *entity.ReadingSession) reading.Session {
	s := reading.Session{
		ID:                 e.Id.String(),
		HostUserID:         e.HostUserId,
		OriginalGuestID:    e.OriginalGuestId,
		DeckID:             e.DeckId,
		SelectedLayout:     e.SelectedLayout,
		Question:           e.Question,
		ReadingStep:        e.ReadingStep,
		SelectedCards:      e.SelectedCards,
		Interpretation:     e.Interpretation,
		ZoomLevel:          e.ZoomLevel,
		PanOffset:          e.PanOffset,
		ZoomFocus:          e.ZoomFocus,
		ShuffledDeck:       e.ShuffledDeck,
		LoadingStates:      e.LoadingStates,
		SharedModalState:   e.SharedModalState,
		DeckSelectionState: e.DeckSelectionState,
		IsActive:           e.IsActive,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
	return s.Clone()
}

// PatchColumns maps the present fields of a patch onto column updates.
// Absent fields produce no entry, so untouched columns are never written.
func (m *ReadingSessionMapper) PatchColumns(p reading.Patch) (map[string]interface{}, error) {
	cols := make(map[string]interface{})
	var err error

	if p.DeckID.Set {
		cols["deck_id"] = p.DeckID.Value
	}
	if p.SelectedLayout.Set {
		cols["selected_layout"] = p.SelectedLayout.Value
	}
	if p.Question.Set {
		cols["question"] = p.Question.Value
	}
	if p.ReadingStep.Set {
		cols["reading_step"] = string(p.ReadingStep.Value)
	}
	if p.SelectedCards.Set {
		cards := p.SelectedCards.Value
		if cards == nil {
			cards = []reading.SelectedCard{}
		}
		if cols["selected_cards"], err = jsonColumn(cards); err != nil {
			return nil, err
		}
	}
	if p.Interpretation.Set {
		cols["interpretation"] = p.Interpretation.Value
	}
	if p.ZoomLevel.Set {
		cols["zoom_level"] = reading.ClampZoom(p.ZoomLevel.Value)
	}
	if p.PanOffset.Set {
		if cols["pan_offset"], err = jsonColumn(p.PanOffset.Value); err != nil {
			return nil, err
		}
	}
	if p.ZoomFocus.Set {
		if cols["zoom_focus"], err = nullableJSONColumn(p.ZoomFocus.Value, p.ZoomFocus.Value == nil); err != nil {
			return nil, err
		}
	}
	if p.ShuffledDeck.Set {
		if cols["shuffled_deck"], err = nullableJSONColumn(p.ShuffledDeck.Value, p.ShuffledDeck.Value == nil); err != nil {
			return nil, err
		}
	}
	if p.LoadingStates.Set {
		if cols["loading_states"], err = nullableJSONColumn(p.LoadingStates.Value, p.LoadingStates.Value == nil); err != nil {
			return nil, err
		}
	}
	if p.SharedModalState.Set {
		if cols["shared_modal_state"], err = nullableJSONColumn(p.SharedModalState.Value, p.SharedModalState.Value == nil); err != nil {
			return nil, err
		}
	}
	if p.DeckSelectionState.Set {
		if cols["deck_selection_state"], err = nullableJSONColumn(p.DeckSelectionState.Value, p.DeckSelectionState.Value == nil); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func jsonColumn(v interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// nullableJSONColumn stores SQL NULL instead of a JSON null literal.
func nullableJSONColumn(v interface{}, isNil bool) (datatypes.JSON, error) {
	if isNil {
		return nil, nil
	}
	return jsonColumn(v)
}
