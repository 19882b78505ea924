package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultStreamURL            = "ws://localhost:8000/ws"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultTokenEnv             = "STREAM_AUTH_TOKEN"
	DefaultServerPort           = 8081
	DefaultMode                 = "paper"
)

func (c *StreamerConfig) applyDefaults() {
	// Realtime defaults
	if c.Realtime.URL == "" {
		c.Realtime.URL = DefaultStreamURL
	}
	if c.Realtime.AuthRequired == nil {
		required := true
		c.Realtime.AuthRequired = &required
	}
	if c.Realtime.HeartbeatInterval == 0 {
		c.Realtime.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Realtime.ReconnectInterval == 0 {
		c.Realtime.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Realtime.MaxReconnectAttempts == 0 {
		c.Realtime.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.BufferSize == 0 {
		c.Realtime.BufferSize = DefaultBufferSize
	}

	// Session defaults
	if c.Session.Token == "" && c.Session.TokenEnv == "" && c.Session.TokenFile == "" {
		c.Session.TokenEnv = DefaultTokenEnv
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Trading defaults
	if c.Trading.DefaultMode == "" {
		c.Trading.DefaultMode = DefaultMode
	}
}
