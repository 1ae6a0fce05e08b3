package nats

import (
	"encoding/json"
	"testing"
	"time"

	"tarot-room-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := events.NewParticipantLeft("s1", "p1", at)
	raw, err := json.Marshal(envelope{Type: src.EventType(), Data: src.Payload(), OccurredAt: src.Timestamp()})
	require.NoError(t, err)

	ev, err := Decode("events.PARTICIPANT_LEFT", raw)
	require.NoError(t, err)
	assert.Equal(t, events.ParticipantLeft, ev.EventType())
	assert.Equal(t, "s1", events.StringField(ev, "session_id"))
	assert.True(t, at.Equal(ev.Timestamp()))
}

func TestDecodeFallsBackToSubject(t *testing.T) {
	ev, err := Decode("events.SESSION_CREATED", []byte(`{"data":{"session_id":"s9"}}`))
	require.NoError(t, err)
	assert.Equal(t, events.SessionCreated, ev.EventType())
	assert.Equal(t, "s9", events.StringField(ev, "session_id"))

	_, err = Decode("events.X", []byte(`not json`))
	assert.Error(t, err)
}
