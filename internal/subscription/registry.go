// Package subscription tracks channel subscriptions across the connection
// lifecycle.
//
// Channels requested before the session is authenticated are queued as
// pending and flushed, exactly once each, when authentication completes.
// Channels subscribed while authenticated are confirmed optimistically: the
// server sends no per-channel acknowledgment, so a successful send is treated
// as confirmation.
package subscription

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
)

// Conn is the slice of the lifecycle manager the registry needs.
type Conn interface {
	Authenticated() bool
	Send(protocol.Envelope) error
}

// Counts is a snapshot of registry sizes.
type Counts struct {
	Confirmed int `json:"confirmed"`
	Pending   int `json:"pending"`
}

// Registry owns the confirmed and pending channel sets. A channel is in at
// most one of the two sets at a time.
type Registry struct {
	conn   Conn
	logger *slog.Logger

	mu        sync.Mutex
	confirmed map[string]struct{}
	pending   map[string]struct{}
}

// NewRegistry creates an empty registry bound to a connection.
func NewRegistry(conn Conn, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conn:      conn,
		logger:    logger.With("component", "subscription"),
		confirmed: make(map[string]struct{}),
		pending:   make(map[string]struct{}),
	}
}

// Subscribe requests a channel. While unauthenticated the channel is queued
// and sent on the next authenticated transition. The call is idempotent:
// repeat requests for a confirmed or queued channel produce no wire traffic
// and no duplicate entries.
func (r *Registry) Subscribe(channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.confirmed[channel]; ok {
		return nil
	}
	if _, ok := r.pending[channel]; ok {
		return nil
	}

	if !r.conn.Authenticated() {
		r.pending[channel] = struct{}{}
		r.logger.Debug("queued subscription", "channel", channel)
		return nil
	}

	if err := r.conn.Send(protocol.NewSubscribe(channel)); err != nil {
		// The connection dropped out from under us; queue for the next
		// authenticated transition instead of failing the request.
		r.pending[channel] = struct{}{}
		r.logger.Debug("queued subscription after send failure", "channel", channel, "error", err)
		return nil
	}

	r.confirmed[channel] = struct{}{}
	r.logger.Debug("subscribed", "channel", channel)
	return nil
}

// Unsubscribe drops a channel. A queued channel is simply removed; a
// confirmed channel additionally produces an unsubscribe envelope.
func (r *Registry) Unsubscribe(channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[channel]; ok {
		delete(r.pending, channel)
		return nil
	}
	if _, ok := r.confirmed[channel]; !ok {
		return nil
	}

	delete(r.confirmed, channel)
	if err := r.conn.Send(protocol.NewUnsubscribe(channel)); err != nil {
		r.logger.Debug("unsubscribe send failed", "channel", channel, "error", err)
	}
	r.logger.Debug("unsubscribed", "channel", channel)
	return nil
}

// FlushPending sends every queued channel exactly once and moves it to
// confirmed. It is invoked synchronously on each authenticated transition, so
// no queued request is lost, only delayed.
func (r *Registry) FlushPending() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return
	}

	channels := make([]string, 0, len(r.pending))
	for ch := range r.pending {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		if err := r.conn.Send(protocol.NewSubscribe(ch)); err != nil {
			r.logger.Warn("flush send failed, keeping pending", "channel", ch, "error", err)
			continue
		}
		delete(r.pending, ch)
		r.confirmed[ch] = struct{}{}
	}

	r.logger.Info("flushed pending subscriptions", "count", len(channels))
}

// DropConfirmed forgets confirmed channels after a connection loss. The
// server no longer holds them, and reconnection alone does not restore them;
// the application layer re-establishes its channel set after the next
// authenticated transition. Pending requests survive.
func (r *Registry) DropConfirmed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = make(map[string]struct{})
}

// Reset clears all volatile subscription state on a manual disconnect.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = make(map[string]struct{})
	r.pending = make(map[string]struct{})
}

// IsConfirmed reports whether a channel is currently confirmed.
func (r *Registry) IsConfirmed(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.confirmed[channel]
	return ok
}

// Confirmed returns the confirmed channels in sorted order.
func (r *Registry) Confirmed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.confirmed)
}

// Pending returns the queued channels in sorted order.
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.pending)
}

// Counts returns the registry sizes.
func (r *Registry) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Counts{Confirmed: len(r.confirmed), Pending: len(r.pending)}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
