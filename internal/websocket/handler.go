package websocket

import (
	"tarot-room-be/pkg/gateway"

	"github.com/gofiber/websocket/v2"
)

// ServeWs streams one session's changes to the peer until either side hangs
// up.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID string, caller gateway.Actor) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionID, Caller: caller, Send: make(chan []byte, sendBuffer)}
	if !hub.Register(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
