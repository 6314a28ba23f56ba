package config

import (
	"fmt"
	"time"

	"secureconnect-client/pkg/constants"
	"secureconnect-client/pkg/env"
)

// Config holds all configuration for the call client
type Config struct {
	Server    ServerConfig
	Signaling SignalingConfig
	Call      CallConfig
	Engine    EngineConfig
	Directory DirectoryConfig
	Prefs     PrefsConfig
	Log       LogConfig
}

// ServerConfig holds the local control surface configuration
type ServerConfig struct {
	Host        string
	Port        int
	Environment string // development, staging, production
}

// SignalingConfig holds signaling relay connection configuration
type SignalingConfig struct {
	URL          string // ws(s):// endpoint of the signaling relay
	AccessToken  string
	PingInterval time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// CallConfig holds the call state machine timeout pair. Both roles share the
// same base no-answer duration; the callee adds a grace period so its local
// timeout always fires after the caller's cancel signal had a chance to land.
type CallConfig struct {
	NoAnswerTimeout   time.Duration
	CalleeGracePeriod time.Duration
}

// CalleeRingTimeout is the callee-side independent ring timeout.
func (c CallConfig) CalleeRingTimeout() time.Duration {
	return c.NoAnswerTimeout + c.CalleeGracePeriod
}

// EngineConfig holds media engine configuration
type EngineConfig struct {
	InitTimeout time.Duration
	JoinTimeout time.Duration
	STUNServers []string
}

// DirectoryConfig holds the conversation/user directory API configuration
type DirectoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PrefsConfig holds the local preferences store configuration
type PrefsConfig struct {
	Dir string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment with sane defaults
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        env.GetString("CONTROL_HOST", "127.0.0.1"),
			Port:        env.GetInt("CONTROL_PORT", 8787),
			Environment: env.GetString("ENV", "development"),
		},
		Signaling: SignalingConfig{
			URL:          env.GetString("SIGNALING_URL", "ws://localhost:8080/v1/ws/signaling"),
			AccessToken:  env.GetStringFromFile("ACCESS_TOKEN", ""),
			PingInterval: env.GetDuration("SIGNALING_PING_INTERVAL", constants.WebSocketPingInterval),
			WriteTimeout: env.GetDuration("SIGNALING_WRITE_TIMEOUT", constants.WebSocketWriteTimeout),
			MaxRetries:   env.GetInt("SIGNALING_MAX_RETRIES", constants.ReconnectMaxAttempts),
		},
		Call: CallConfig{
			NoAnswerTimeout:   env.GetDuration("CALL_NO_ANSWER_TIMEOUT", constants.NoAnswerTimeout),
			CalleeGracePeriod: env.GetDuration("CALL_CALLEE_GRACE_PERIOD", constants.CalleeGracePeriod),
		},
		Engine: EngineConfig{
			InitTimeout: env.GetDuration("ENGINE_INIT_TIMEOUT", constants.EngineInitTimeout),
			JoinTimeout: env.GetDuration("ENGINE_JOIN_TIMEOUT", constants.EngineJoinTimeout),
			STUNServers: []string{env.GetString("ENGINE_STUN_SERVER", "stun:stun.l.google.com:19302")},
		},
		Directory: DirectoryConfig{
			BaseURL: env.GetString("API_BASE_URL", "http://localhost:8080"),
			Timeout: env.GetDuration("API_TIMEOUT", constants.DirectoryRequestTimeout),
		},
		Prefs: PrefsConfig{
			Dir: env.GetString("PREFS_DIR", defaultPrefsDir()),
		},
		Log: LogConfig{
			Level:  env.GetString("LOG_LEVEL", "info"),
			Format: env.GetString("LOG_FORMAT", "text"),
		},
	}
}

// ControlAddr returns the listen address of the control surface
func (c *Config) ControlAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultPrefsDir() string {
	return env.GetString("HOME", ".") + "/.secureconnect"
}
