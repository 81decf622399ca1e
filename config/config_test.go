package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MEETUP_OTP_TTL", "5m")
	// 先以 t.Setenv 登記還原，再清除，模擬未設定的變數
	t.Setenv("FRONTEND_URL", "")
	os.Unsetenv("FRONTEND_URL")
	t.Setenv("STORE_BACKEND", "")
	os.Unsetenv("STORE_BACKEND")
	t.Setenv("SEED_FILE", "testdata/seed.json")

	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 5*time.Minute, cfg.MeetupOTPTTL)
	assert.Equal(t, "http://localhost:5173", cfg.FrontendURL)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, "testdata/seed.json", cfg.SeedFile)
}

func TestGetDuration(t *testing.T) {
	t.Setenv("MEETUP_OTP_TTL", "90s")
	assert.Equal(t, 90*time.Second, getDuration("MEETUP_OTP_TTL", time.Minute))

	t.Setenv("MEETUP_OTP_TTL", "soon")
	assert.Equal(t, time.Minute, getDuration("MEETUP_OTP_TTL", time.Minute))

	t.Setenv("MEETUP_OTP_TTL", "-5m")
	assert.Equal(t, time.Minute, getDuration("MEETUP_OTP_TTL", time.Minute))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("CAMPUS_KART_TEST_KEY", "value")
	assert.Equal(t, "value", getEnv("CAMPUS_KART_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getEnv("CAMPUS_KART_MISSING_KEY", "fallback"))
}
