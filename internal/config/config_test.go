package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadingDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.Reading.PresenceInterval)
	assert.Equal(t, 2*time.Second, cfg.Reading.MigrationVerifyDelay)
	assert.True(t, cfg.Reading.GuestWritesEnabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("READING_PRESENCE_INTERVAL", "45s")
	t.Setenv("READING_SWEEP_INTERVAL", "90")
	t.Setenv("READING_GUEST_WRITES_ENABLED", "false")
	t.Setenv("READING_SESSION_IDLE_TIMEOUT", "soon")

	cfg := Load()
	assert.Equal(t, 45*time.Second, cfg.Reading.PresenceInterval)
	assert.Equal(t, 90*time.Second, cfg.Reading.SweepInterval)
	assert.False(t, cfg.Reading.GuestWritesEnabled)
	assert.Equal(t, 2*time.Hour, cfg.Reading.SessionIdleTimeout)
}
