package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"tarot-room-be/internal/config"
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/pkg/gateway/remote"
	"tarot-room-be/pkg/identity"
	"tarot-room-be/pkg/reading"
	"tarot-room-be/pkg/readingroom"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// client is one simulated browser: its own storage, token and store.
type client struct {
	name  string
	mu    sync.Mutex
	token string
	store *readingroom.Store
}

func (c *client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *client) SignIn(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// storageFor keeps each browser's keys in Redis when it is reachable, so a
// rerun of the simulation sees the same guest.
func storageFor(rdb *redis.Client, browser string) identity.ClientStorage {
	if rdb == nil {
		return identity.NewMemoryStorage()
	}
	return identity.NewRedisStorage(rdb, browser)
}

func newClient(name, baseURL, secret, token string, rdb *redis.Client, log logger.ILogger) *client {
	c := &client{name: name, token: token}

	var resolver *identity.Resolver
	gw := remote.New(remote.Options{
		BaseURL: baseURL,
		Credentials: func(ctx context.Context) (remote.Credentials, error) {
			return remote.FromResolver(resolver, c.Token)(ctx)
		},
		Logger: log,
	})
	resolver = identity.NewResolver(
		storageFor(rdb, name),
		identity.NewTokenAuth(secret, c.Token),
		identity.Options{Profiles: gw, Logger: log},
	)
	c.store = readingroom.New(gw, resolver, readingroom.Options{Logger: log})
	return c
}

func connectRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		color.Yellow("Redis unavailable (%v), keeping client storage in memory", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func printState(c *client) {
	st, ok := c.store.State()
	if !ok {
		color.Red("[%s] no session", c.name)
		return
	}
	view := map[string]interface{}{
		"id":           st.ID,
		"step":         st.ReadingStep,
		"question":     st.Question,
		"layout":       st.SelectedLayout,
		"cards":        len(st.SelectedCards),
		"host":         c.store.IsHost(),
		"guest":        c.store.IsGuest(),
		"participants": len(c.store.Participants()),
	}
	b, _ := json.MarshalIndent(view, "", "  ")
	color.White("[%s] %s", c.name, string(b))
	if e := c.store.Error(); e != nil {
		color.Red("[%s] error: %s", c.name, e.Error())
	}
}

// await polls until cond holds or the timeout passes.
func await(what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			color.Green("  ✓ %s", what)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	color.Red("  ✗ %s (timed out)", what)
}

func main() {
	cfg := config.Load()
	if cfg.App.JWTSecret == "" {
		color.Red("JWT_SECRET is not set")
		os.Exit(1)
	}
	baseURL := "http://localhost:" + cfg.App.Port + "/api"
	log := logger.NewZapLogger("logs/simulation.log", false)
	defer log.Sync()

	rdb := connectRedis(cfg.App.RedisURL)
	ctx := context.Background()

	color.Cyan("=== Tarot Room Simulation ===")
	color.Cyan("API: %s", baseURL)

	hostID := uuid.NewString()
	hostToken, err := identity.SignToken(cfg.App.JWTSecret, hostID, "Hana")
	if err != nil {
		color.Red("sign host token: %v", err)
		os.Exit(1)
	}

	host := newClient("host", baseURL, cfg.App.JWTSecret, hostToken, rdb, log)
	guest := newClient("guest", baseURL, cfg.App.JWTSecret, "", rdb, log)
	defer host.store.LeaveSession(ctx)
	defer guest.store.LeaveSession(ctx)

	// 1. Host opens a reading
	color.Yellow("\n1. Host creates a session")
	sessionID := host.store.CreateSession(ctx, "rider-waite")
	if sessionID == "" || host.store.Degraded() {
		color.Red("Session could not be created remotely: %v", host.store.Error())
		os.Exit(1)
	}
	printState(host)

	// 2. Guest joins through the shared link
	color.Yellow("\n2. Guest joins %s", sessionID)
	if !guest.store.JoinSession(ctx, sessionID) {
		color.Red("Join failed: %v", guest.store.Error())
		os.Exit(1)
	}
	guest.store.SetGuestName(ctx, "Moon")
	await("host sees two participants", func() bool { return len(host.store.Participants()) == 2 })

	// 3. Host sets up the spread, guest asks the question
	color.Yellow("\n3. Host picks a layout, guest asks")
	layout := "three-card"
	host.store.UpdateSession(ctx, reading.Patch{
		SelectedLayout: reading.Some(&layout),
		ReadingStep:    reading.Some(reading.StepAskQuestion),
	})
	guest.store.UpdateSession(ctx, reading.Patch{Question: reading.Some("What should I focus on this month?")})
	await("host sees the question", func() bool {
		st, ok := host.store.State()
		return ok && st.Question != ""
	})

	// 4. Cards are drawn
	color.Yellow("\n4. Host draws three cards")
	host.store.UpdateSession(ctx, reading.Patch{
		ReadingStep: reading.Some(reading.StepDrawing),
		SelectedCards: reading.Some([]reading.SelectedCard{
			{CardID: "the-star", Position: "past"},
			{CardID: "the-moon", Position: "present", IsReversed: true},
			{CardID: "the-sun", Position: "future"},
		}),
	})
	await("guest sees three cards", func() bool {
		st, ok := guest.store.State()
		return ok && len(st.SelectedCards) == 3
	})
	printState(host)
	printState(guest)

	// 5. Guest signs up without losing the reading
	color.Yellow("\n5. Guest upgrades to an account")
	userID := uuid.NewString()
	if !guest.store.BeginGuestUpgrade(ctx, userID, "/reading/"+sessionID) {
		color.Red("Upgrade could not start: %v", guest.store.Error())
		os.Exit(1)
	}
	userToken, err := identity.SignToken(cfg.App.JWTSecret, userID, "Moon")
	if err != nil {
		color.Red("sign user token: %v", err)
		os.Exit(1)
	}
	guest.SignIn(userToken)
	if !guest.store.UpgradeGuestAccount(ctx, identity.Identity{ID: userID, DisplayName: "Moon"}) {
		color.Red("Upgrade failed: %v", guest.store.Error())
	} else {
		color.Green("  ✓ upgraded, guest=%v", guest.store.IsGuest())
	}
	printState(guest)

	fmt.Println()
	color.Cyan("=== Simulation finished ===")
}
