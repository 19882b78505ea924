// Package middleware bridges application intents and the realtime core.
//
// Intents (start/stop realtime, trade executed, active symbol changed,
// trading mode switched) become lifecycle and subscription calls; received
// stream payloads become store updates and cache patches. Payload failures
// are logged, never propagated: a bad payload must not tear the connection
// down.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/cache"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/dispatch"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/realtime"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/store"
)

// Connection is the slice of the lifecycle manager the middleware drives.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() realtime.State
	LastError() error
	OnStateChange(realtime.StateListener)
}

// Subscriptions is the slice of the registry the middleware drives.
type Subscriptions interface {
	Subscribe(channel string) error
	Unsubscribe(channel string) error
	FlushPending()
	DropConfirmed()
	Reset()
}

// Payload envelope types the middleware consumes.
var payloadTypes = []string{
	protocol.TypeMarketData,
	protocol.TypeOrderUpdate,
	protocol.TypePositionUpdate,
	protocol.TypePortfolioUpdate,
	protocol.TypeError,
}

// StoreSync is the store synchronization middleware. Constructed once per
// session with its collaborators injected.
type StoreSync struct {
	conn   Connection
	subs   Subscriptions
	disp   *dispatch.Dispatcher
	store  *store.Store
	cache  *cache.Cache
	logger *slog.Logger

	mu            sync.Mutex
	started       bool
	activeSymbols map[string]struct{}
}

// New wires the middleware to its collaborators and registers the state
// listener that keeps the registry and the store's connection slice current
// for the rest of the session.
func New(conn Connection, subs Subscriptions, disp *dispatch.Dispatcher, st *store.Store, c *cache.Cache, logger *slog.Logger) *StoreSync {
	if logger == nil {
		logger = slog.Default()
	}

	s := &StoreSync{
		conn:          conn,
		subs:          subs,
		disp:          disp,
		store:         st,
		cache:         c,
		logger:        logger.With("component", "middleware"),
		activeSymbols: make(map[string]struct{}),
	}

	conn.OnStateChange(s.onState)

	return s
}

// Start handles the "start realtime" intent: register payload handlers, then
// connect. Channel establishment happens on the authenticated transition.
func (s *StoreSync) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.disp.Handle(protocol.TypeMarketData, s.guard("market_data", s.handleMarketData))
	s.disp.Handle(protocol.TypeOrderUpdate, s.guard("order_update", s.handleOrderUpdate))
	s.disp.Handle(protocol.TypePositionUpdate, s.guard("position_update", s.handlePositionUpdate))
	s.disp.Handle(protocol.TypePortfolioUpdate, s.guard("portfolio_update", s.handlePortfolioUpdate))
	s.disp.Handle(protocol.TypeError, s.guard("error", s.handleServerError))

	if err := s.conn.Connect(ctx); err != nil {
		return fmt.Errorf("start realtime: %w", err)
	}
	return nil
}

// Stop handles the "stop realtime" intent: deregister handlers and
// disconnect.
func (s *StoreSync) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	for _, t := range payloadTypes {
		s.disp.Remove(t)
	}
	s.conn.Disconnect()
}

// Run acquires the realtime session for the lifetime of the context and
// releases it on every exit path.
func (s *StoreSync) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Stop()

	<-ctx.Done()
	return nil
}

// OnTradeExecuted handles a successful trade: the fetch-layer entries for the
// affected mode are stale, and the traded symbol's quote stream must be live.
func (s *StoreSync) OnTradeExecuted(symbol string, mode protocol.Mode) {
	s.cache.Invalidate(TagPortfolio(mode), TagPositions(mode), TagOrderHistory(mode))
	s.trackSymbol(symbol)
	s.subs.Subscribe(protocol.QuoteChannel(symbol))
}

// OnSymbolChanged handles navigation to a symbol's detail view. Previously
// viewed symbols stay subscribed; channel cleanup is a known resource-growth
// caveat.
func (s *StoreSync) OnSymbolChanged(symbol string) {
	s.trackSymbol(symbol)
	s.subs.Subscribe(protocol.QuoteChannel(symbol))
}

// OnModeSwitched handles a paper/live switch. Channel churn happens only on
// an authenticated session; otherwise the switch is recorded in the store and
// channels are established on the next authenticated transition.
func (s *StoreSync) OnModeSwitched(mode protocol.Mode) {
	old := s.store.Mode()
	if old == mode {
		return
	}
	s.store.SetMode(mode)

	if s.conn.State() != realtime.StateAuthenticated {
		return
	}
	for _, ch := range protocol.ModeChannels(old) {
		s.subs.Unsubscribe(ch)
	}
	for _, ch := range protocol.ModeChannels(mode) {
		s.subs.Subscribe(ch)
	}
}

// onState keeps the registry and the store's connection slice in step with
// lifecycle transitions.
func (s *StoreSync) onState(st realtime.State) {
	s.store.SetConnectionState(st.String(), s.conn.LastError())

	switch st {
	case realtime.StateAuthenticated:
		s.subs.FlushPending()
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			s.establishChannels()
		}
	case realtime.StateError:
		// The server no longer holds our subscriptions.
		s.subs.DropConfirmed()
	case realtime.StateDisconnected:
		s.subs.Reset()
	}
}

// establishChannels subscribes the default channel set implied by current
// application context: the active mode's portfolio and order streams plus
// quote streams for every symbol in view.
func (s *StoreSync) establishChannels() {
	for _, ch := range protocol.ModeChannels(s.store.Mode()) {
		s.subs.Subscribe(ch)
	}

	s.mu.Lock()
	symbols := make([]string, 0, len(s.activeSymbols))
	for sym := range s.activeSymbols {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()
	sort.Strings(symbols)

	for _, sym := range symbols {
		s.subs.Subscribe(protocol.QuoteChannel(sym))
	}
}

func (s *StoreSync) trackSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSymbols[symbol] = struct{}{}
}

// guard keeps payload-handler failures out of the read loop: a panicking
// store or cache update is logged and dropped.
func (s *StoreSync) guard(name string, fn func(protocol.Message)) dispatch.Handler {
	return func(msg protocol.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("payload handler failed", "handler", name, "panic", r)
			}
		}()
		fn(msg)
	}
}

func (s *StoreSync) handleMarketData(msg protocol.Message) {
	md, ok := msg.(protocol.MarketData)
	if !ok {
		return
	}
	s.store.ApplyMarketData(md)
	s.cache.Patch(QuoteKey(md.Symbol), func(any) any { return md })
}

func (s *StoreSync) handleOrderUpdate(msg protocol.Message) {
	ou, ok := msg.(protocol.OrderUpdate)
	if !ok {
		return
	}
	s.store.ApplyOrderUpdate(ou)

	// Cached order history for the mode is stale; a fill also moves cash and
	// positions.
	s.cache.InvalidateKey(OrderHistoryKey(ou.Mode()))
	if ou.Status == "filled" {
		s.cache.Invalidate(TagPortfolio(ou.Mode()), TagPositions(ou.Mode()))
	}
}

func (s *StoreSync) handlePositionUpdate(msg protocol.Message) {
	pu, ok := msg.(protocol.PositionUpdate)
	if !ok {
		return
	}
	s.store.ApplyPositionUpdate(pu)
	s.cache.InvalidateKey(PositionsKey(pu.Mode()))
}

func (s *StoreSync) handlePortfolioUpdate(msg protocol.Message) {
	pu, ok := msg.(protocol.PortfolioUpdate)
	if !ok {
		return
	}
	s.store.ApplyPortfolioUpdate(pu)
	s.cache.Patch(PortfolioKey(pu.Mode()), func(any) any { return pu })
}

func (s *StoreSync) handleServerError(msg protocol.Message) {
	se, ok := msg.(protocol.ServerError)
	if !ok {
		return
	}
	s.logger.Warn("server reported stream error", "message", se.Message)
	s.store.SetStreamError(se.Message)
}
