// Package remote implements gateway.Gateway against the reading API over
// HTTP, with the change stream carried on a websocket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tarot-room-be/internal/dto"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/identity"
	"tarot-room-be/pkg/reading"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultReadyTimeout = 10 * time.Second
	headerGuestID       = "X-Guest-Id"
)

// Credentials identify the caller to the API: a signed-in user's bearer
// token, or a guest id.
type Credentials struct {
	Token   string
	GuestID string
}

type CredentialsFunc func(ctx context.Context) (Credentials, error)

// FromResolver presents the resolver's current identity. token returns the
// bearer token of the signed-in user.
func FromResolver(r *identity.Resolver, token func() string) CredentialsFunc {
	return func(ctx context.Context) (Credentials, error) {
		id, err := r.Current(ctx)
		if err != nil {
			return Credentials{}, err
		}
		if id.Anonymous {
			return Credentials{GuestID: id.ID}, nil
		}
		return Credentials{Token: token()}, nil
	}
}

type Options struct {
	// BaseURL is the API root, e.g. http://localhost:3000/api.
	BaseURL      string
	Credentials  CredentialsFunc
	Timeout      time.Duration
	ReadyTimeout time.Duration
	Logger       logger.ILogger
}

type Client struct {
	base         string
	creds        CredentialsFunc
	http         *fasthttp.Client
	dialer       *websocket.Dialer
	timeout      time.Duration
	readyTimeout time.Duration
	logger       logger.ILogger
}

var _ gateway.Gateway = (*Client)(nil)

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Credentials == nil {
		opts.Credentials = func(context.Context) (Credentials, error) { return Credentials{}, nil }
	}
	return &Client{
		base:  strings.TrimRight(opts.BaseURL, "/") + "/reading/v1",
		creds: opts.Credentials,
		http: &fasthttp.Client{
			Name:         "tarot-room-client",
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		dialer:       &websocket.Dialer{HandshakeTimeout: opts.Timeout},
		timeout:      opts.Timeout,
		readyTimeout: opts.ReadyTimeout,
		logger:       opts.Logger,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// StatusError is a non-2xx API answer that maps to no gateway sentinel.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reading api: %d %s", e.Status, e.Message)
}

func statusError(status int, message string) error {
	switch status {
	case fasthttp.StatusNotFound:
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, message)
	case fasthttp.StatusForbidden, fasthttp.StatusUnauthorized:
		return fmt.Errorf("%w: %s", gateway.ErrPermissionDenied, message)
	case fasthttp.StatusBadRequest, fasthttp.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", gateway.ErrInvalid, message)
	}
	return &StatusError{Status: status, Message: message}
}

// do sends one request and decodes the data field of the envelope into out,
// when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	creds, err := c.creds(ctx)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	setCredentials(&req.Header, creds)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		if resp.StatusCode() >= 300 {
			return statusError(resp.StatusCode(), string(resp.Body()))
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode() >= 300 || !env.Success {
		status := resp.StatusCode()
		if status < 300 {
			status = env.Code
		}
		return statusError(status, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func setCredentials(h *fasthttp.RequestHeader, creds Credentials) {
	if creds.Token != "" {
		h.Set(fasthttp.HeaderAuthorization, "Bearer "+creds.Token)
		return
	}
	if creds.GuestID != "" {
		h.Set(headerGuestID, creds.GuestID)
	}
}

func (c *Client) InsertSession(ctx context.Context, in gateway.NewSession) (reading.Session, error) {
	var s reading.Session
	err := c.do(ctx, fasthttp.MethodPost, "/sessions", dto.CreateSessionRequest{DeckID: in.DeckID, HostUserID: in.HostUserID}, &s)
	return s, err
}

func (c *Client) GetSession(ctx context.Context, id string) (reading.Session, error) {
	var s reading.Session
	err := c.do(ctx, fasthttp.MethodGet, "/sessions/"+url.PathEscape(id), nil, &s)
	return s, err
}

func (c *Client) UpdateSession(ctx context.Context, id string, _ gateway.Actor, patch reading.Patch) (reading.Session, error) {
	var s reading.Session
	err := c.do(ctx, fasthttp.MethodPatch, "/sessions/"+url.PathEscape(id), patch, &s)
	return s, err
}

func (c *Client) FindActiveParticipant(ctx context.Context, sessionID, identityID string) (reading.Participant, error) {
	var p reading.Participant
	path := "/sessions/" + url.PathEscape(sessionID) + "/participants/lookup?identity=" + url.QueryEscape(identityID)
	err := c.do(ctx, fasthttp.MethodGet, path, nil, &p)
	return p, err
}

func (c *Client) InsertParticipant(ctx context.Context, in gateway.NewParticipant) (reading.Participant, error) {
	var p reading.Participant
	err := c.do(ctx, fasthttp.MethodPost, "/sessions/"+url.PathEscape(in.SessionID)+"/participants", dto.InsertParticipantRequest{
		UserID:      in.UserID,
		AnonymousID: in.AnonymousID,
		Name:        in.Name,
	}, &p)
	return p, err
}

func (c *Client) ListParticipants(ctx context.Context, sessionID string) ([]reading.Participant, error) {
	var ps []reading.Participant
	err := c.do(ctx, fasthttp.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/participants", nil, &ps)
	return ps, err
}

func (c *Client) TouchParticipant(ctx context.Context, participantID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/participants/"+url.PathEscape(participantID)+"/touch", nil, nil)
}

func (c *Client) RenameParticipant(ctx context.Context, participantID, name string) (reading.Participant, error) {
	var p reading.Participant
	err := c.do(ctx, fasthttp.MethodPatch, "/participants/"+url.PathEscape(participantID), dto.RenameParticipantRequest{Name: name}, &p)
	return p, err
}

func (c *Client) DeactivateParticipant(ctx context.Context, participantID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/participants/"+url.PathEscape(participantID)+"/deactivate", nil, nil)
}

func (c *Client) EnsureProfile(ctx context.Context, id, displayName string, anonymous bool) error {
	return c.do(ctx, fasthttp.MethodPut, "/profiles/"+url.PathEscape(id), dto.EnsureProfileRequest{DisplayName: displayName, Anonymous: anonymous}, nil)
}

func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/profiles/"+url.PathEscape(id), nil, nil)
}

func (c *Client) MigrateOwnership(ctx context.Context, guestID, userID string) (gateway.MigrationResult, error) {
	var res gateway.MigrationResult
	err := c.do(ctx, fasthttp.MethodPost, "/migrations", dto.MigrateOwnershipRequest{GuestID: guestID, UserID: userID}, &res)
	return res, err
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
