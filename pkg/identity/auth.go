package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// AuthSource reports the authenticated user, if any.
type AuthSource interface {
	Authenticated(ctx context.Context) (Identity, bool, error)
}

// StaticAuth holds an identity set by the host application after login.
type StaticAuth struct {
	mu       sync.RWMutex
	identity *Identity
}

func NewStaticAuth() *StaticAuth {
	return &StaticAuth{}
}

func (a *StaticAuth) Set(id Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id.Anonymous = false
	a.identity = &id
}

func (a *StaticAuth) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.identity = nil
}

func (a *StaticAuth) Authenticated(context.Context) (Identity, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.identity == nil {
		return Identity{}, false, nil
	}
	return *a.identity, true, nil
}

// TokenAuth reads a bearer token issued by the API and trusts its user_id
// claim. An empty token means nobody is signed in.
type TokenAuth struct {
	secret []byte
	token  func() string
}

func NewTokenAuth(secret string, token func() string) *TokenAuth {
	return &TokenAuth{secret: []byte(secret), token: token}
}

func (a *TokenAuth) Authenticated(context.Context) (Identity, bool, error) {
	raw := a.token()
	if raw == "" {
		return Identity{}, false, nil
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, false, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return Identity{}, false, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, false, errors.New("invalid claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Identity{}, false, errors.New("token carries no user_id")
	}
	name, _ := claims["name"].(string)
	return Identity{ID: userID, DisplayName: name}, true, nil
}

// SignToken issues an HS256 token with the claims TokenAuth understands.
func SignToken(secret, userID, name string) (string, error) {
	claims := jwt.MapClaims{"user_id": userID}
	if name != "" {
		claims["name"] = name
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
