package config

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog"
)

const (
	PresenceMemory = "memory"
	PresenceRedis  = "redis"

	MediaPion = "pion"
	// MediaNone runs the client for signaling only; every incoming call is answered NotSupported.
	MediaNone = "none"
)

// Server holds the relay server configuration
type Server struct {
	Addr      string
	LogLevel  zerolog.Level
	StaticDir string

	Presence    string
	RedisAddr   string
	RedisDB     int
	PresenceTTL time.Duration
}

// Client holds the call client configuration
type Client struct {
	UserID    domain.UserID
	ChannelID domain.ChannelID
	RelayURL  string
	LogLevel  zerolog.Level

	Media            string
	ICEServers       []string
	CallsEnabled     bool
	CaptureSupported bool
}

// LoadServer reads flags from args, then lets environment variables override them.
func LoadServer(args []string, getenv func(string) string) (*Server, error) {
	cfg := &Server{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	var logLevel string
	fs.StringVar(&cfg.Addr, "addr", ":8080", "HTTP listen address")
	fs.StringVar(&logLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.StaticDir, "static", "./static", "Directory served at /, empty to disable")
	fs.StringVar(&cfg.Presence, "presence", PresenceMemory, "Presence backend (memory, redis)")
	fs.StringVar(&cfg.RedisAddr, "redis", "localhost:6379", "Redis address for the redis presence backend")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database")
	fs.DurationVar(&cfg.PresenceTTL, "presence-ttl", 2*time.Minute, "Presence expiry without heartbeat")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if v := getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("LOGLEVEL"); v != "" {
		logLevel = v
	}
	if v, ok := lookup(getenv, "STATIC_DIR"); ok {
		cfg.StaticDir = v
	}
	if v := getenv("PRESENCE_BACKEND"); v != "" {
		cfg.Presence = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}
	if v := getenv("PRESENCE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("PRESENCE_TTL: %w", err)
		}
		cfg.PresenceTTL = ttl
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg.LogLevel = level

	if cfg.Presence != PresenceMemory && cfg.Presence != PresenceRedis {
		return nil, fmt.Errorf("unknown presence backend %q", cfg.Presence)
	}
	return cfg, nil
}

// LoadClient reads flags from args, then lets environment variables override them.
func LoadClient(args []string, getenv func(string) string) (*Client, error) {
	cfg := &Client{}
	fs := flag.NewFlagSet("client", flag.ContinueOnError)

	var userID, channelID, logLevel, iceServers string
	fs.StringVar(&userID, "user", "", "Local user id (uuid)")
	fs.StringVar(&channelID, "channel", "", "Channel id (uuid), random when empty")
	fs.StringVar(&cfg.RelayURL, "relay", "ws://localhost:8080/ws", "Relay websocket URL")
	fs.StringVar(&logLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Media, "media", MediaPion, "Media backend (pion, none)")
	fs.StringVar(&iceServers, "ice", "stun:stun.l.google.com:19302", "ICE server URLs (comma-separated)")
	fs.BoolVar(&cfg.CallsEnabled, "calls", true, "Accept and place video calls")
	fs.BoolVar(&cfg.CaptureSupported, "capture", true, "This client can capture audio and video")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if v := getenv("USER_ID"); v != "" {
		userID = v
	}
	if v := getenv("CHANNEL_ID"); v != "" {
		channelID = v
	}
	if v := getenv("RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := getenv("LOGLEVEL"); v != "" {
		logLevel = v
	}
	if v := getenv("MEDIA_BACKEND"); v != "" {
		cfg.Media = v
	}
	if v, ok := lookup(getenv, "ICE_SERVERS"); ok {
		iceServers = v
	}
	if v := getenv("CALLS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CALLS_ENABLED: %w", err)
		}
		cfg.CallsEnabled = b
	}
	if v := getenv("CAPTURE_SUPPORTED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CAPTURE_SUPPORTED: %w", err)
		}
		cfg.CaptureSupported = b
	}

	if userID == "" {
		return nil, errors.New("user id is required (-user or USER_ID)")
	}
	id, err := domain.ParseUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	cfg.UserID = id

	if channelID == "" {
		cfg.ChannelID = domain.NewChannelID()
	} else {
		ch, err := domain.ParseChannelID(channelID)
		if err != nil {
			return nil, fmt.Errorf("channel id: %w", err)
		}
		cfg.ChannelID = ch
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg.LogLevel = level

	cfg.ICEServers = parseList(iceServers)
	if cfg.Media != MediaPion && cfg.Media != MediaNone {
		return nil, fmt.Errorf("unknown media backend %q", cfg.Media)
	}
	return cfg, nil
}

// lookup treats an explicitly empty value as set, using a sentinel "-".
func lookup(getenv func(string) string, key string) (string, bool) {
	v := getenv(key)
	if v == "" {
		return "", false
	}
	if v == "-" {
		return "", true
	}
	return v, true
}

// parseList parses a comma-separated list
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
