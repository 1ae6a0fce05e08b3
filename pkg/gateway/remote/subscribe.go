package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"tarot-room-be/pkg/gateway"

	"github.com/fasthttp/websocket"
)

const (
	feedBuffer = 64
	writeWait  = 10 * time.Second
	// idleTimeout bounds the silence between frames; the server pings well
	// inside it.
	idleTimeout = 75 * time.Second
)

func (c *Client) streamURL(sessionID string, creds Credentials) (string, error) {
	u, err := url.Parse(c.base + "/ws/sessions/" + url.PathEscape(sessionID))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	if creds.Token != "" {
		q.Set("token", creds.Token)
	} else if creds.GuestID != "" {
		q.Set("guest_id", creds.GuestID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe opens the session stream and returns once the server reports the
// room subscription live.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (gateway.Subscription, error) {
	creds, err := c.creds(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}
	target, err := c.streamURL(sessionID, creds)
	if err != nil {
		return nil, fmt.Errorf("stream url: %w", err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return nil, statusError(resp.StatusCode, "stream handshake rejected")
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.readyTimeout))
	var hello gateway.StreamMessage
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("await ready: %w", err)
	}
	if hello.Type != gateway.StreamReady {
		conn.Close()
		return nil, fmt.Errorf("await ready: unexpected %q frame", hello.Type)
	}

	conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	feed := gateway.NewFeed(feedBuffer, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		conn.Close()
	})
	go c.read(conn, feed, sessionID)

	c.logger.Debug("REMOTE", "Session stream subscribed", map[string]interface{}{"session_id": sessionID})
	return feed, nil
}

func (c *Client) read(conn *websocket.Conn, feed *gateway.Feed, sessionID string) {
	for {
		var msg gateway.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			status := gateway.StatusChannelError
			if IsTimeout(err) {
				status = gateway.StatusTimedOut
			}
			if feed.Status() == gateway.StatusSubscribed {
				c.logger.Warn("REMOTE", "Session stream lost", map[string]interface{}{
					"session_id": sessionID,
					"status":     string(status),
					"error":      err.Error(),
				})
			}
			feed.End(status)
			return
		}
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		if msg.Type != gateway.StreamChange || msg.Data == nil {
			continue
		}
		if !feed.Push(*msg.Data) {
			return
		}
	}
}
