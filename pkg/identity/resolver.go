package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"tarot-room-be/internal/pkg/logger"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// ProfileStore materializes the profile row backing an identity.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, id, displayName string, anonymous bool) error
}

type mode int

const (
	modeAuto mode = iota
	modeAuthenticated
	modeGuest
)

type Options struct {
	// Fingerprint returns a stable per-browser value. Guests fall back to a
	// random token when it is nil or fails.
	Fingerprint func() (string, error)
	Profiles    ProfileStore
	Logger      logger.ILogger
}

type Resolver struct {
	storage     ClientStorage
	auth        AuthSource
	profiles    ProfileStore
	fingerprint func() (string, error)
	logger      logger.ILogger

	group singleflight.Group

	mu       sync.RWMutex
	mode     mode
	override Identity
	// profiled is the last freshly minted token whose profile was requested.
	profiled string
}

type minted struct {
	token string
	fresh bool
}

func NewResolver(storage ClientStorage, auth AuthSource, opts Options) *Resolver {
	if auth == nil {
		auth = NewStaticAuth()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Resolver{
		storage:     storage,
		auth:        auth,
		profiles:    opts.Profiles,
		fingerprint: opts.Fingerprint,
		logger:      opts.Logger,
	}
}

func (r *Resolver) Storage() ClientStorage {
	return r.storage
}

// Current returns the authenticated identity when there is one, else the
// guest identity of this browser.
func (r *Resolver) Current(ctx context.Context) (Identity, error) {
	r.mu.RLock()
	m, override := r.mode, r.override
	r.mu.RUnlock()

	switch m {
	case modeAuthenticated:
		return override, nil
	case modeGuest:
		return r.GuestIdentity(ctx)
	}

	id, ok, err := r.auth.Authenticated(ctx)
	if err != nil {
		r.logger.Warn("IDENTITY", "Auth source failed, falling back to guest", map[string]interface{}{"error": err.Error()})
	}
	if ok {
		return id, nil
	}
	return r.GuestIdentity(ctx)
}

// GuestIdentity returns this browser's guest identity, minting and persisting
// a token on first use. Concurrent first calls share a single mint.
func (r *Resolver) GuestIdentity(ctx context.Context) (Identity, error) {
	v, err, _ := r.group.Do(KeyGuestToken, func() (interface{}, error) {
		token, err := r.storage.Get(ctx, KeyGuestToken)
		if err == nil && token != "" {
			return minted{token: token}, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("read guest token: %w", err)
		}

		token, err = r.mintToken(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.storage.Set(ctx, KeyGuestToken, token); err != nil {
			return nil, fmt.Errorf("persist guest token: %w", err)
		}
		r.logger.Info("IDENTITY", "Minted guest token", map[string]interface{}{"guest_id": token})
		return minted{token: token, fresh: true}, nil
	})
	if err != nil {
		return Identity{}, err
	}

	m := v.(minted)
	// The profile is requested outside the mint: a remote profile store
	// resolves the caller again, which must find the stored token.
	if m.fresh && r.profiles != nil && r.claimProfile(m.token) {
		if err := r.profiles.EnsureProfile(ctx, m.token, GuestDisplayName(m.token), true); err != nil {
			r.logger.Warn("IDENTITY", "Guest profile not materialized", map[string]interface{}{
				"guest_id": m.token,
				"error":    err.Error(),
			})
		}
	}
	return Identity{ID: m.token, Anonymous: true, DisplayName: GuestDisplayName(m.token)}, nil
}

func (r *Resolver) claimProfile(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profiled == token {
		return false
	}
	r.profiled = token
	return true
}

func (r *Resolver) mintToken(ctx context.Context) (string, error) {
	if r.fingerprint != nil {
		fp, err := r.fingerprint()
		if err == nil && fp != "" {
			sum := blake2b.Sum256([]byte(fp))
			token := GuestPrefix + hex.EncodeToString(sum[:16])
			// A fingerprint keeps deriving the same id, so a retired one must
			// give way to a random token.
			if retired, _ := r.storage.Get(ctx, KeyRetiredGuest); retired != token {
				return token, nil
			}
		}
		if err != nil {
			r.logger.Debug("IDENTITY", "Fingerprint unavailable, using random token", map[string]interface{}{"error": err.Error()})
		}
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate guest token: %w", err)
	}
	return GuestPrefix + hex.EncodeToString(buf), nil
}

func (r *Resolver) IsAnonymous(ctx context.Context) bool {
	id, err := r.Current(ctx)
	if err != nil {
		return true
	}
	return id.Anonymous
}

// SetAuthenticated pins the resolver to a signed-in identity.
func (r *Resolver) SetAuthenticated(id Identity) {
	id.Anonymous = false
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = modeAuthenticated
	r.override = id
}

// UseGuest pins the resolver back to the stored guest identity, ignoring the
// auth source.
func (r *Resolver) UseGuest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = modeGuest
	r.override = Identity{}
}

// ClearGuest forgets the guest token. A migrated guest token is never reused.
func (r *Resolver) ClearGuest(ctx context.Context) error {
	if token, err := r.storage.Get(ctx, KeyGuestToken); err == nil && token != "" {
		if err := r.storage.Set(ctx, KeyRetiredGuest, token); err != nil {
			return fmt.Errorf("retire guest token: %w", err)
		}
	}
	if err := r.storage.Delete(ctx, KeyGuestToken); err != nil {
		return fmt.Errorf("clear guest token: %w", err)
	}
	return nil
}

func GuestDisplayName(id string) string {
	if len(id) < 4 {
		return "Guest"
	}
	return "Guest " + id[len(id)-4:]
}
