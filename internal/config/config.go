package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Session  SessionConfig  `yaml:"session"`
	Server   ServerConfig   `yaml:"server"`
	Trading  TradingConfig  `yaml:"trading"`
}

// RealtimeConfig holds connection lifecycle manager settings.
type RealtimeConfig struct {
	URL                  string        `yaml:"url"`
	AuthRequired         *bool         `yaml:"auth_required"` // nil means true
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// SessionConfig holds auth token settings. Exactly one source is used, in
// order: token, token_env, token_file.
type SessionConfig struct {
	Token     string `yaml:"token"`
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
}

// ServerConfig holds the local HTTP status server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// TradingConfig holds trading mode settings.
type TradingConfig struct {
	DefaultMode string `yaml:"default_mode"`
}
