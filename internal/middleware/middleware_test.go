package middleware

import (
	"context"
	"sync"
	"testing"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/cache"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/dispatch"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/realtime"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/store"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/subscription"
)

// fakeConn stands in for the lifecycle manager. It satisfies both the
// middleware's Connection interface and the registry's Conn interface, so
// tests can drive state transitions and inspect wire traffic directly.
type fakeConn struct {
	mu          sync.Mutex
	state       realtime.State
	lastErr     error
	listeners   []realtime.StateListener
	connects    int
	disconnects int
	sent        []protocol.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{state: realtime.StateDisconnected}
}

func (f *fakeConn) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.state = realtime.StateDisconnected
}

func (f *fakeConn) State() realtime.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *fakeConn) OnStateChange(l realtime.StateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

func (f *fakeConn) Authenticated() bool {
	return f.State() == realtime.StateAuthenticated
}

func (f *fakeConn) Send(env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) setState(st realtime.State) {
	f.mu.Lock()
	f.state = st
	ls := append([]realtime.StateListener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l(st)
	}
}

func (f *fakeConn) sentChannels(msgType string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, env := range f.sent {
		if env.Type == msgType {
			out = append(out, env.Channel)
		}
	}
	return out
}

type harness struct {
	conn  *fakeConn
	subs  *subscription.Registry
	disp  *dispatch.Dispatcher
	store *store.Store
	cache *cache.Cache
	mw    *StoreSync
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn := newFakeConn()
	subs := subscription.NewRegistry(conn, nil)
	disp := dispatch.New(nil)
	st := store.New(protocol.ModePaper)
	c := cache.New(nil)

	return &harness{
		conn:  conn,
		subs:  subs,
		disp:  disp,
		store: st,
		cache: c,
		mw:    New(conn, subs, disp, st, c, nil),
	}
}

func containsChannel(channels []string, want string) bool {
	for _, ch := range channels {
		if ch == want {
			return true
		}
	}
	return false
}

func TestStoreSync_MarketDataUpdatesStoreAndCache(t *testing.T) {
	h := newHarness(t)
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Seed a fetch-layer entry so the stream patch has something to land on.
	h.cache.Set(QuoteKey("AAPL"), "stale")

	h.disp.Dispatch([]byte(`{
		"type": "market_data",
		"data": {
			"symbol": "AAPL",
			"price": 150.25,
			"change": 2.50,
			"change_percent": 1.69,
			"volume": 45230000,
			"timestamp": "2024-01-15T14:30:00Z"
		},
		"timestamp": "2024-01-15T14:30:00Z"
	}`))

	q, ok := h.store.Quote("AAPL")
	if !ok {
		t.Fatal("quote not stored")
	}
	if got := q.Price.String(); got != "150.25" {
		t.Errorf("stored price = %s, want 150.25", got)
	}

	cached, ok := h.cache.Get(QuoteKey("AAPL"))
	if !ok {
		t.Fatal("cache entry missing after patch")
	}
	md, ok := cached.(protocol.MarketData)
	if !ok {
		t.Fatalf("cached entry is %T, want protocol.MarketData", cached)
	}
	if md.Symbol != "AAPL" {
		t.Errorf("cached symbol = %q, want AAPL", md.Symbol)
	}
}

func TestStoreSync_AuthenticatedEstablishesChannels(t *testing.T) {
	h := newHarness(t)

	// Requested before any connection exists: must queue, not send.
	h.mw.OnSymbolChanged("TSLA")
	if len(h.conn.sentChannels(protocol.TypeSubscribe)) != 0 {
		t.Fatal("subscribe sent before authentication")
	}

	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.conn.setState(realtime.StateConnecting)
	h.conn.setState(realtime.StateConnected)
	h.conn.setState(realtime.StateAuthenticated)

	sent := h.conn.sentChannels(protocol.TypeSubscribe)
	for _, want := range []string{
		protocol.QuoteChannel("TSLA"),
		protocol.OrderChannel(protocol.ModePaper),
		protocol.PortfolioChannel(protocol.ModePaper),
	} {
		if !containsChannel(sent, want) {
			t.Errorf("channel %q not subscribed, sent: %v", want, sent)
		}
	}

	// Each channel exactly once: idempotent flush plus establish.
	seen := make(map[string]int)
	for _, ch := range sent {
		seen[ch]++
	}
	for ch, n := range seen {
		if n != 1 {
			t.Errorf("channel %q subscribed %d times", ch, n)
		}
	}

	if got := h.store.Connection().State; got != "authenticated" {
		t.Errorf("store connection state = %q, want authenticated", got)
	}
}

func TestStoreSync_ConnectionLossDropsConfirmed(t *testing.T) {
	h := newHarness(t)
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.conn.setState(realtime.StateAuthenticated)

	h.mw.OnSymbolChanged("AAPL")
	if got := h.subs.Counts().Confirmed; got == 0 {
		t.Fatalf("expected confirmed subscriptions, got %d", got)
	}

	h.conn.setState(realtime.StateError)
	if got := h.subs.Counts().Confirmed; got != 0 {
		t.Errorf("confirmed after connection loss = %d, want 0", got)
	}
	if got := h.store.Connection().State; got != "error" {
		t.Errorf("store connection state = %q, want error", got)
	}
}

func TestStoreSync_DisconnectedResetsRegistry(t *testing.T) {
	h := newHarness(t)
	h.mw.OnSymbolChanged("AAPL")
	if got := h.subs.Counts().Pending; got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	h.conn.setState(realtime.StateDisconnected)
	counts := h.subs.Counts()
	if counts.Pending != 0 || counts.Confirmed != 0 {
		t.Errorf("registry not reset: %+v", counts)
	}
}

func TestStoreSync_TradeExecutedInvalidatesModeEntries(t *testing.T) {
	h := newHarness(t)
	h.conn.setState(realtime.StateAuthenticated)

	h.cache.Set(PortfolioKey(protocol.ModePaper), "p", TagPortfolio(protocol.ModePaper))
	h.cache.Set(PositionsKey(protocol.ModePaper), "pos", TagPositions(protocol.ModePaper))
	h.cache.Set(OrderHistoryKey(protocol.ModePaper), "o", TagOrderHistory(protocol.ModePaper))
	h.cache.Set(PortfolioKey(protocol.ModeLive), "pl", TagPortfolio(protocol.ModeLive))

	h.mw.OnTradeExecuted("NVDA", protocol.ModePaper)

	for _, key := range []string{
		PortfolioKey(protocol.ModePaper),
		PositionsKey(protocol.ModePaper),
		OrderHistoryKey(protocol.ModePaper),
	} {
		if _, ok := h.cache.Get(key); ok {
			t.Errorf("entry %q survived invalidation", key)
		}
	}
	if _, ok := h.cache.Get(PortfolioKey(protocol.ModeLive)); !ok {
		t.Error("live-mode entry invalidated by a paper trade")
	}

	if !containsChannel(h.conn.sentChannels(protocol.TypeSubscribe), protocol.QuoteChannel("NVDA")) {
		t.Error("traded symbol's quote channel not subscribed")
	}
}

func TestStoreSync_OrderFillInvalidatesDerivedEntries(t *testing.T) {
	h := newHarness(t)
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.cache.Set(OrderHistoryKey(protocol.ModePaper), "o", TagOrderHistory(protocol.ModePaper))
	h.cache.Set(PortfolioKey(protocol.ModePaper), "p", TagPortfolio(protocol.ModePaper))
	h.cache.Set(PositionsKey(protocol.ModePaper), "pos", TagPositions(protocol.ModePaper))

	h.disp.Dispatch([]byte(`{
		"type": "order_update",
		"data": {
			"order_id": "ord-1",
			"status": "filled",
			"symbol": "AAPL",
			"trade_type": "buy",
			"quantity": 10,
			"filled_quantity": 10,
			"filled_price": 150.30,
			"timestamp": "2024-01-15T14:30:01Z",
			"paper_trading": true
		},
		"timestamp": "2024-01-15T14:30:01Z"
	}`))

	if _, ok := h.store.Order("ord-1"); !ok {
		t.Fatal("order not stored")
	}
	for _, key := range []string{
		OrderHistoryKey(protocol.ModePaper),
		PortfolioKey(protocol.ModePaper),
		PositionsKey(protocol.ModePaper),
	} {
		if _, ok := h.cache.Get(key); ok {
			t.Errorf("entry %q survived a fill", key)
		}
	}
}

func TestStoreSync_ModeSwitchWhileAuthenticatedSwapsChannels(t *testing.T) {
	h := newHarness(t)
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.conn.setState(realtime.StateAuthenticated)

	h.mw.OnModeSwitched(protocol.ModeLive)

	unsubs := h.conn.sentChannels(protocol.TypeUnsubscribe)
	for _, want := range protocol.ModeChannels(protocol.ModePaper) {
		if !containsChannel(unsubs, want) {
			t.Errorf("old channel %q not unsubscribed", want)
		}
	}
	subs := h.conn.sentChannels(protocol.TypeSubscribe)
	for _, want := range protocol.ModeChannels(protocol.ModeLive) {
		if !containsChannel(subs, want) {
			t.Errorf("new channel %q not subscribed", want)
		}
	}
	if got := h.store.Mode(); got != protocol.ModeLive {
		t.Errorf("store mode = %q, want live", got)
	}
}

func TestStoreSync_ModeSwitchWhileDisconnectedIsLocalOnly(t *testing.T) {
	h := newHarness(t)

	h.mw.OnModeSwitched(protocol.ModeLive)

	if got := h.store.Mode(); got != protocol.ModeLive {
		t.Errorf("store mode = %q, want live", got)
	}
	if n := len(h.conn.sentChannels(protocol.TypeSubscribe)); n != 0 {
		t.Errorf("%d subscribes sent while disconnected", n)
	}
	if n := len(h.conn.sentChannels(protocol.TypeUnsubscribe)); n != 0 {
		t.Errorf("%d unsubscribes sent while disconnected", n)
	}
}

func TestStoreSync_ModeSwitchToCurrentModeIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.conn.setState(realtime.StateAuthenticated)

	h.mw.OnModeSwitched(protocol.ModePaper)

	if n := len(h.conn.sentChannels(protocol.TypeUnsubscribe)); n != 0 {
		t.Errorf("%d unsubscribes sent for a same-mode switch", n)
	}
}

func TestStoreSync_HandlerPanicIsContained(t *testing.T) {
	h := newHarness(t)

	handler := h.mw.guard("test", func(protocol.Message) {
		panic("payload handler blew up")
	})
	handler(protocol.Pong{})
}

func TestStoreSync_StopDeregistersHandlersAndDisconnects(t *testing.T) {
	h := newHarness(t)
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.mw.Stop()

	if h.conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", h.conn.disconnects)
	}

	h.disp.Dispatch([]byte(`{"type": "market_data", "data": {"symbol": "AAPL", "price": 1, "change": 0, "change_percent": 0, "volume": 0, "timestamp": "t"}, "timestamp": "t"}`))
	if got := h.store.MessageCount(); got != 0 {
		t.Errorf("store applied %d payloads after Stop", got)
	}
	if got := h.disp.Stats().Unhandled; got != 1 {
		t.Errorf("unhandled = %d, want 1", got)
	}
}

func TestStoreSync_StartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if h.conn.connects != 1 {
		t.Errorf("connects = %d, want 1", h.conn.connects)
	}
}

func TestStoreSync_ServerErrorRecordedInStore(t *testing.T) {
	h := newHarness(t)
	if err := h.mw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.disp.Dispatch([]byte(`{"type": "error", "data": {"message": "rate limit exceeded"}, "timestamp": "t"}`))

	if got := h.store.Connection().StreamError; got != "rate limit exceeded" {
		t.Errorf("stream error = %q, want rate limit exceeded", got)
	}
}
