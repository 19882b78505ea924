package protocol

import (
	"encoding/json"
	"time"
)

// Message types sent by the client.
const (
	TypeAuthenticate = "authenticate"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
)

// Message types sent by the server.
const (
	TypeAuthSuccess     = "auth_success"
	TypeAuthFailed      = "auth_failed"
	TypeMarketData      = "market_data"
	TypeOrderUpdate     = "order_update"
	TypePositionUpdate  = "position_update"
	TypePortfolioUpdate = "portfolio_update"
	TypeError           = "error"
	TypePong            = "pong"
)

// Envelope is the wire unit for every message in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	Channel   string          `json:"channel,omitempty"`
}

// Marshal serializes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func newEnvelope(msgType string, data any) Envelope {
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		raw, _ := json.Marshal(data)
		env.Data = raw
	}
	return env
}

// NewAuthenticate builds the post-handshake authentication envelope.
func NewAuthenticate(token string) Envelope {
	return newEnvelope(TypeAuthenticate, map[string]string{"token": token})
}

// NewSubscribe builds a subscribe envelope for the given channel.
func NewSubscribe(channel string) Envelope {
	env := newEnvelope(TypeSubscribe, map[string]string{"channel": channel})
	env.Channel = channel
	return env
}

// NewUnsubscribe builds an unsubscribe envelope for the given channel.
func NewUnsubscribe(channel string) Envelope {
	env := newEnvelope(TypeUnsubscribe, map[string]string{"channel": channel})
	env.Channel = channel
	return env
}

// NewPing builds a heartbeat envelope.
func NewPing() Envelope {
	return newEnvelope(TypePing, nil)
}
