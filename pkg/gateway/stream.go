package gateway

import "tarot-room-be/pkg/reading"

// Messages on the session websocket, one JSON object per frame.
const (
	StreamReady  = "ready"
	StreamChange = "change"
)

// StreamMessage is a frame of the session change stream. The server sends a
// single ready frame once the room subscription is live, then change frames.
type StreamMessage struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId"`
	Data      *reading.ChangeEvent `json:"data,omitempty"`
}
