// Package dispatch implements the Message Dispatcher component.
//
// The dispatcher decodes every inbound frame and routes the typed payload to
// the single handler registered for its envelope type. Malformed frames are
// counted and reported to the decode-error handler without touching the
// connection; unknown envelope types are logged and dropped.
package dispatch

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
)

// Handler consumes one decoded payload.
type Handler func(protocol.Message)

// ErrorHandler is invoked once per frame that fails to decode.
type ErrorHandler func(error)

// Stats contains runtime counters.
type Stats struct {
	Received    int64 `json:"received"`
	Routed      int64 `json:"routed"`
	ParseErrors int64 `json:"parse_errors"`
	Unknown     int64 `json:"unknown"`
	Unhandled   int64 `json:"unhandled"`
}

// Dispatcher routes decoded envelopes to typed handlers.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	onError  ErrorHandler

	received    atomic.Int64
	routed      atomic.Int64
	parseErrors atomic.Int64
	unknown     atomic.Int64
	unhandled   atomic.Int64
}

// New creates a Dispatcher with an empty routing table.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for an envelope type, replacing any previous
// registration. Each type routes to exactly one handler.
func (d *Dispatcher) Handle(msgType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, msgType)
		return
	}
	d.handlers[msgType] = h
}

// Remove deregisters the handler for an envelope type.
func (d *Dispatcher) Remove(msgType string) {
	d.Handle(msgType, nil)
}

// OnDecodeError registers the handler invoked for malformed frames.
func (d *Dispatcher) OnDecodeError(h ErrorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = h
}

// Dispatch decodes one raw frame and routes it. It is called from the
// transport read loop, so frames are processed in delivery order.
func (d *Dispatcher) Dispatch(data []byte) {
	d.received.Add(1)

	msg, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			d.unknown.Add(1)
			d.logger.Debug("dropping unknown message type", "error", err)
			return
		}

		d.parseErrors.Add(1)
		d.logger.Warn("failed to decode frame", "error", err)

		d.mu.RLock()
		onError := d.onError
		d.mu.RUnlock()
		if onError != nil {
			onError(err)
		}
		return
	}

	d.mu.RLock()
	h := d.handlers[msg.MessageType()]
	d.mu.RUnlock()

	if h == nil {
		d.unhandled.Add(1)
		d.logger.Debug("no handler registered", "type", msg.MessageType())
		return
	}

	d.routed.Add(1)
	h(msg)
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:    d.received.Load(),
		Routed:      d.routed.Load(),
		ParseErrors: d.parseErrors.Load(),
		Unknown:     d.unknown.Load(),
		Unhandled:   d.unhandled.Load(),
	}
}
