// Package store holds the reactive application state fed by the realtime
// stream. Slices are keyed the way the wire protocol keys them: quotes by
// symbol, orders by order id, positions by symbol and mode, portfolios by
// mode. All mutation goes through Apply/Set methods; readers get copies.
package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
)

// Quote is the stored market-data slice entry for one symbol.
type Quote struct {
	Symbol        string              `json:"symbol"`
	Price         decimal.Decimal     `json:"price"`
	Change        decimal.Decimal     `json:"change"`
	ChangePercent decimal.Decimal     `json:"change_percent"`
	Volume        int64               `json:"volume"`
	Bid           decimal.NullDecimal `json:"bid,omitempty"`
	Ask           decimal.NullDecimal `json:"ask,omitempty"`
	Timestamp     string              `json:"timestamp"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Order is the stored state of one order.
type Order struct {
	OrderID        string              `json:"order_id"`
	Status         string              `json:"status"`
	Symbol         string              `json:"symbol"`
	TradeType      string              `json:"trade_type"`
	Quantity       decimal.Decimal     `json:"quantity"`
	FilledQuantity decimal.NullDecimal `json:"filled_quantity,omitempty"`
	Price          decimal.NullDecimal `json:"price,omitempty"`
	FilledPrice    decimal.NullDecimal `json:"filled_price,omitempty"`
	Mode           protocol.Mode       `json:"mode"`
	Timestamp      string              `json:"timestamp"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Position is the stored state of one position, keyed by symbol and mode.
type Position struct {
	Symbol               string          `json:"symbol"`
	Quantity             decimal.Decimal `json:"quantity"`
	AverageCost          decimal.Decimal `json:"average_cost"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	MarketValue          decimal.Decimal `json:"market_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
	Mode                 protocol.Mode   `json:"mode"`
	Timestamp            string          `json:"timestamp"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Portfolio is the stored account-level snapshot for one mode.
type Portfolio struct {
	TotalValue    decimal.Decimal `json:"total_value"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	DayPnL        decimal.Decimal `json:"day_pnl"`
	DayPnLPercent decimal.Decimal `json:"day_pnl_percent"`
	Mode          protocol.Mode   `json:"mode"`
	Timestamp     string          `json:"timestamp"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ConnectionStatus is the UI-visible connection slice.
type ConnectionStatus struct {
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	StreamError string `json:"stream_error,omitempty"`
}

type positionKey struct {
	symbol string
	mode   protocol.Mode
}

// Store is the reactive state container. Constructed once per session.
type Store struct {
	mu sync.RWMutex

	quotes     map[string]Quote
	orders     map[string]Order
	positions  map[positionKey]Position
	portfolios map[protocol.Mode]Portfolio

	connection ConnectionStatus
	mode       protocol.Mode
	messages   int64
}

// New creates an empty store with the given initial trading mode.
func New(mode protocol.Mode) *Store {
	return &Store{
		quotes:     make(map[string]Quote),
		orders:     make(map[string]Order),
		positions:  make(map[positionKey]Position),
		portfolios: make(map[protocol.Mode]Portfolio),
		connection: ConnectionStatus{State: "disconnected"},
		mode:       mode,
	}
}

// ApplyMarketData updates the quote slice for the payload's symbol.
func (s *Store) ApplyMarketData(md protocol.MarketData) {
	q := Quote{
		Symbol:        md.Symbol,
		Price:         decimal.NewFromFloat(md.Price),
		Change:        decimal.NewFromFloat(md.Change),
		ChangePercent: decimal.NewFromFloat(md.ChangePercent),
		Volume:        md.Volume,
		Timestamp:     md.Timestamp,
		UpdatedAt:     time.Now(),
	}
	if md.Bid != nil {
		q.Bid = decimal.NewNullDecimal(decimal.NewFromFloat(*md.Bid))
	}
	if md.Ask != nil {
		q.Ask = decimal.NewNullDecimal(decimal.NewFromFloat(*md.Ask))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[md.Symbol] = q
	s.messages++
}

// ApplyOrderUpdate updates the order slice for the payload's order id.
func (s *Store) ApplyOrderUpdate(ou protocol.OrderUpdate) {
	o := Order{
		OrderID:   ou.OrderID,
		Status:    ou.Status,
		Symbol:    ou.Symbol,
		TradeType: ou.TradeType,
		Quantity:  decimal.NewFromFloat(ou.Quantity),
		Mode:      ou.Mode(),
		Timestamp: ou.Timestamp,
		UpdatedAt: time.Now(),
	}
	if ou.FilledQuantity != nil {
		o.FilledQuantity = decimal.NewNullDecimal(decimal.NewFromFloat(*ou.FilledQuantity))
	}
	if ou.Price != nil {
		o.Price = decimal.NewNullDecimal(decimal.NewFromFloat(*ou.Price))
	}
	if ou.FilledPrice != nil {
		o.FilledPrice = decimal.NewNullDecimal(decimal.NewFromFloat(*ou.FilledPrice))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[ou.OrderID] = o
	s.messages++
}

// ApplyPositionUpdate updates the position slice for the payload's symbol and
// mode. MarketValue is derived from quantity and current price.
func (s *Store) ApplyPositionUpdate(pu protocol.PositionUpdate) {
	qty := decimal.NewFromFloat(pu.Quantity)
	price := decimal.NewFromFloat(pu.CurrentPrice)

	p := Position{
		Symbol:               pu.Symbol,
		Quantity:             qty,
		AverageCost:          decimal.NewFromFloat(pu.AverageCost),
		CurrentPrice:         price,
		MarketValue:          qty.Mul(price),
		UnrealizedPnL:        decimal.NewFromFloat(pu.UnrealizedPnL),
		UnrealizedPnLPercent: decimal.NewFromFloat(pu.UnrealizedPnLPercent),
		Mode:                 pu.Mode(),
		Timestamp:            pu.Timestamp,
		UpdatedAt:            time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey{symbol: pu.Symbol, mode: pu.Mode()}] = p
	s.messages++
}

// ApplyPortfolioUpdate updates the portfolio slice for the payload's mode.
func (s *Store) ApplyPortfolioUpdate(pu protocol.PortfolioUpdate) {
	p := Portfolio{
		TotalValue:    decimal.NewFromFloat(pu.TotalValue),
		CashBalance:   decimal.NewFromFloat(pu.CashBalance),
		DayPnL:        decimal.NewFromFloat(pu.DayPnL),
		DayPnLPercent: decimal.NewFromFloat(pu.DayPnLPercent),
		Mode:          pu.Mode(),
		Timestamp:     pu.Timestamp,
		UpdatedAt:     time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[pu.Mode()] = p
	s.messages++
}

// SetConnectionState records the connection state and its error for the UI.
func (s *Store) SetConnectionState(state string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection.State = state
	if err != nil {
		s.connection.Error = err.Error()
	} else {
		s.connection.Error = ""
	}
}

// SetStreamError records a server-reported stream error.
func (s *Store) SetStreamError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection.StreamError = msg
}

// SetMode switches the active trading mode.
func (s *Store) SetMode(mode protocol.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Mode returns the active trading mode.
func (s *Store) Mode() protocol.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Quote returns the stored quote for a symbol.
func (s *Store) Quote(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// Quotes returns all stored quotes.
func (s *Store) Quotes() map[string]Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Quote, len(s.quotes))
	for k, v := range s.quotes {
		out[k] = v
	}
	return out
}

// Order returns the stored order with the given id.
func (s *Store) Order(orderID string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	return o, ok
}

// Orders returns all orders for a mode.
func (s *Store) Orders(mode protocol.Mode) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Order
	for _, o := range s.orders {
		if o.Mode == mode {
			out = append(out, o)
		}
	}
	return out
}

// Position returns the stored position for a symbol and mode.
func (s *Store) Position(symbol string, mode protocol.Mode) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey{symbol: symbol, mode: mode}]
	return p, ok
}

// Positions returns all positions for a mode.
func (s *Store) Positions(mode protocol.Mode) []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Position
	for k, p := range s.positions {
		if k.mode == mode {
			out = append(out, p)
		}
	}
	return out
}

// Portfolio returns the stored portfolio snapshot for a mode.
func (s *Store) Portfolio(mode protocol.Mode) (Portfolio, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[mode]
	return p, ok
}

// Connection returns the connection status slice.
func (s *Store) Connection() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connection
}

// MessageCount returns the number of stream payloads applied.
func (s *Store) MessageCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages
}
