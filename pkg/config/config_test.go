package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg := fromViper(defaultViper())

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, ChangeFeedMemory, cfg.Leave.ChangeFeed)
	assert.True(t, cfg.Leave.CacheEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Leave.BalanceCacheTTL)
	assert.Equal(t, 2, cfg.Notifications.WorkerConcurrency)
	assert.Equal(t, 3, cfg.Notifications.WorkerRetries)
	assert.Equal(t, 1.0, cfg.Leave.WriteRate)
	assert.Equal(t, 5, cfg.Leave.WriteBurst)

	loc, err := cfg.Leave.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestOverridesAndParsing(t *testing.T) {
	v := defaultViper()
	v.Set("LEAVE_CHANGE_FEED", " Redis ")
	v.Set("LEAVE_BALANCE_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://hr.example.com, ,https://admin.example.com")
	v.Set("LEAVE_TIMEZONE", "Asia/Manila")

	cfg := fromViper(v)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ChangeFeedRedis, cfg.Leave.ChangeFeed)
	assert.Equal(t, 5*time.Minute, cfg.Leave.BalanceCacheTTL)
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	v := defaultViper()
	v.Set("LEAVE_CHANGE_FEED", "kafka")
	assert.Error(t, fromViper(v).Validate())

	v = defaultViper()
	v.Set("LEAVE_TIMEZONE", "Mars/Olympus")
	assert.Error(t, fromViper(v).Validate())

	v = defaultViper()
	v.Set("ENV", EnvProduction)
	assert.Error(t, fromViper(v).Validate())

	v = defaultViper()
	v.Set("LEAVE_WRITE_RATE", -1)
	assert.Error(t, fromViper(v).Validate())

	v.Set("JWT_SECRET", "a-real-secret")
	assert.NoError(t, fromViper(v).Validate())
}
