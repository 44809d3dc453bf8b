package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wyydra/yacall/internal/core/domain"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := LoadServer(nil, env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "./static", cfg.StaticDir)
	assert.Equal(t, PresenceMemory, cfg.Presence)
	assert.Equal(t, 2*time.Minute, cfg.PresenceTTL)
}

func TestLoadServer_EnvOverridesFlags(t *testing.T) {
	cfg, err := LoadServer(
		[]string{"-addr", ":9000", "-presence", "redis", "-loglevel", "warn"},
		env(map[string]string{
			"ADDR":         ":7000",
			"REDIS_ADDR":   "redis:6379",
			"REDIS_DB":     "3",
			"PRESENCE_TTL": "30s",
			"STATIC_DIR":   "-",
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, PresenceRedis, cfg.Presence)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
	assert.Empty(t, cfg.StaticDir)
}

func TestLoadServer_Invalid(t *testing.T) {
	tests := map[string]struct {
		args []string
		env  map[string]string
	}{
		"unknown backend": {args: []string{"-presence", "etcd"}},
		"bad log level":   {env: map[string]string{"LOGLEVEL": "loud"}},
		"bad redis db":    {env: map[string]string{"REDIS_DB": "zero"}},
		"bad ttl":         {env: map[string]string{"PRESENCE_TTL": "soon"}},
		"unknown flag":    {args: []string{"-port", "80"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadServer(tt.args, env(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoadClient(t *testing.T) {
	user := domain.NewUserID()
	channel := domain.NewChannelID()

	cfg, err := LoadClient(
		[]string{"-user", user.String(), "-media", "none", "-calls=false"},
		env(map[string]string{
			"CHANNEL_ID":        channel.String(),
			"ICE_SERVERS":       "stun:a.example:3478, turn:b.example:3478",
			"CAPTURE_SUPPORTED": "false",
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, user, cfg.UserID)
	assert.Equal(t, channel, cfg.ChannelID)
	assert.Equal(t, MediaNone, cfg.Media)
	assert.False(t, cfg.CallsEnabled)
	assert.False(t, cfg.CaptureSupported)
	assert.Equal(t, []string{"stun:a.example:3478", "turn:b.example:3478"}, cfg.ICEServers)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.RelayURL)
}

func TestLoadClient_Defaults(t *testing.T) {
	user := domain.NewUserID()
	cfg, err := LoadClient(nil, env(map[string]string{"USER_ID": user.String()}))
	require.NoError(t, err)

	assert.Equal(t, MediaPion, cfg.Media)
	assert.True(t, cfg.CallsEnabled)
	assert.True(t, cfg.CaptureSupported)
	assert.False(t, cfg.ChannelID.IsZero())
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)

	cfg, err = LoadClient(nil, env(map[string]string{"USER_ID": user.String(), "ICE_SERVERS": "-"}))
	require.NoError(t, err)
	assert.Empty(t, cfg.ICEServers)
}

func TestLoadClient_Invalid(t *testing.T) {
	user := domain.NewUserID().String()
	tests := map[string]struct {
		args []string
		env  map[string]string
	}{
		"missing user":  {},
		"bad user":      {args: []string{"-user", "alice"}},
		"bad channel":   {args: []string{"-user", user, "-channel", "general"}},
		"bad media":     {args: []string{"-user", user, "-media", "gstreamer"}},
		"bad calls env": {args: []string{"-user", user}, env: map[string]string{"CALLS_ENABLED": "maybe"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadClient(tt.args, env(tt.env))
			assert.Error(t, err)
		})
	}
}
