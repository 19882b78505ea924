package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Decode errors.
var (
	ErrMalformed   = errors.New("malformed envelope")
	ErrUnknownType = errors.New("unknown message type")
)

// Decode parses a raw inbound frame into its typed payload.
//
// Frames that are not valid envelopes return an error wrapping ErrMalformed.
// Envelope types outside the server vocabulary return an error wrapping
// ErrUnknownType so callers can drop them without treating them as decode
// failures.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case TypeAuthSuccess:
		return AuthSuccess{}, nil
	case TypeAuthFailed:
		var msg AuthFailed
		return msg, decodeData(env, &msg)
	case TypePong:
		return Pong{}, nil
	case TypeError:
		var msg ServerError
		return msg, decodeData(env, &msg)
	case TypeMarketData:
		var msg MarketData
		return msg, decodeData(env, &msg)
	case TypeOrderUpdate:
		var msg OrderUpdate
		return msg, decodeData(env, &msg)
	case TypePositionUpdate:
		var msg PositionUpdate
		return msg, decodeData(env, &msg)
	case TypePortfolioUpdate:
		var msg PortfolioUpdate
		return msg, decodeData(env, &msg)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodeData(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformed, env.Type, err)
	}
	return nil
}
