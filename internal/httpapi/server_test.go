package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/dispatch"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/realtime"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/session"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/store"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/subscription"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	disp := dispatch.New(nil)
	mgr := realtime.NewManager(realtime.DefaultConfig(), session.Static("token"), disp, nil)
	subs := subscription.NewRegistry(mgr, nil)
	st := store.New(protocol.ModePaper)

	srv, err := NewServer(Config{
		Port:    8081,
		Manager: mgr,
		Subs:    subs,
		Disp:    disp,
		Store:   st,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, st
}

func doGet(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doGet(t, srv, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf(`status field = %v, want "ok"`, body["status"])
	}
	if body["version"] == "" {
		t.Error("version field is empty")
	}
}

func TestStatusReportsComponents(t *testing.T) {
	srv, st := newTestServer(t)
	st.SetConnectionState("authenticated", nil)

	rec, body := doGet(t, srv, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, key := range []string{"realtime", "connection", "subscriptions", "dispatcher", "mode", "messages"} {
		if _, ok := body[key]; !ok {
			t.Errorf("status response missing %q", key)
		}
	}

	conn, ok := body["connection"].(map[string]any)
	if !ok {
		t.Fatalf("connection field is %T", body["connection"])
	}
	if conn["state"] != "authenticated" {
		t.Errorf("connection.state = %v, want authenticated", conn["state"])
	}
}

func TestQuoteBySymbol(t *testing.T) {
	srv, st := newTestServer(t)
	st.ApplyMarketData(protocol.MarketData{
		Symbol: "AAPL",
		Price:  150.25,
		Volume: 1000,
	})

	rec, body := doGet(t, srv, "/api/quotes/AAPL")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	quote, ok := body["quote"].(map[string]any)
	if !ok {
		t.Fatalf("quote field is %T", body["quote"])
	}
	if quote["symbol"] != "AAPL" {
		t.Errorf("symbol = %v, want AAPL", quote["symbol"])
	}

	rec, _ = doGet(t, srv, "/api/quotes/MISSING")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing symbol status = %d, want 404", rec.Code)
	}
}

func TestPositionsFilteredByMode(t *testing.T) {
	srv, st := newTestServer(t)
	st.ApplyPositionUpdate(protocol.PositionUpdate{Symbol: "AAPL", Quantity: 10, CurrentPrice: 150, PaperTrading: true})
	st.ApplyPositionUpdate(protocol.PositionUpdate{Symbol: "TSLA", Quantity: 5, CurrentPrice: 250, PaperTrading: false})

	rec, body := doGet(t, srv, "/api/positions?mode=live")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	positions, ok := body["positions"].([]any)
	if !ok {
		t.Fatalf("positions field is %T", body["positions"])
	}
	if len(positions) != 1 {
		t.Fatalf("live positions = %d, want 1", len(positions))
	}

	// No mode parameter defaults to the store's active mode (paper).
	rec, body = doGet(t, srv, "/api/positions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["mode"] != "paper" {
		t.Errorf("default mode = %v, want paper", body["mode"])
	}
}

func TestInvalidModeRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doGet(t, srv, "/api/orders?mode=backtest")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPortfolioNotFoundBeforeFirstSnapshot(t *testing.T) {
	srv, st := newTestServer(t)

	rec, _ := doGet(t, srv, "/api/portfolio")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	st.ApplyPortfolioUpdate(protocol.PortfolioUpdate{TotalValue: 100000, CashBalance: 25000, PaperTrading: true})
	rec, body := doGet(t, srv, "/api/portfolio")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, ok := body["portfolio"]; !ok {
		t.Error("portfolio field missing")
	}
}
