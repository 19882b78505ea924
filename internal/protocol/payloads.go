package protocol

// Mode distinguishes paper trading from live trading.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// ModeFromPaperFlag maps the wire-level paper_trading flag to a Mode.
func ModeFromPaperFlag(paper bool) Mode {
	if paper {
		return ModePaper
	}
	return ModeLive
}

// PaperTrading reports the wire-level flag for the mode.
func (m Mode) PaperTrading() bool { return m == ModePaper }

// Message is the closed set of decoded server payloads. Exactly one concrete
// type exists per inbound envelope type.
type Message interface {
	// MessageType returns the envelope type this payload arrived under.
	MessageType() string
}

// AuthSuccess confirms the authenticate handshake.
type AuthSuccess struct{}

// AuthFailed rejects the authenticate handshake.
type AuthFailed struct {
	Reason string `json:"reason"`
}

// Pong answers a client ping.
type Pong struct{}

// ServerError is a stream-level error report from the server.
type ServerError struct {
	Message string `json:"message"`
}

// MarketData is a quote update for a single symbol.
type MarketData struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"change_percent"`
	Volume        int64    `json:"volume"`
	Timestamp     string   `json:"timestamp"`
	Bid           *float64 `json:"bid,omitempty"`
	Ask           *float64 `json:"ask,omitempty"`
}

// OrderUpdate reports a change to a single order.
type OrderUpdate struct {
	OrderID        string   `json:"order_id"`
	Status         string   `json:"status"`
	Symbol         string   `json:"symbol"`
	TradeType      string   `json:"trade_type"`
	Quantity       float64  `json:"quantity"`
	FilledQuantity *float64 `json:"filled_quantity,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	FilledPrice    *float64 `json:"filled_price,omitempty"`
	Timestamp      string   `json:"timestamp"`
	PaperTrading   bool     `json:"paper_trading"`
}

// PositionUpdate reports the state of one position, keyed by symbol and mode.
type PositionUpdate struct {
	Symbol               string  `json:"symbol"`
	Quantity             float64 `json:"quantity"`
	AverageCost          float64 `json:"average_cost"`
	CurrentPrice         float64 `json:"current_price"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`
	Timestamp            string  `json:"timestamp"`
	PaperTrading         bool    `json:"paper_trading"`
}

// PortfolioUpdate reports account-level totals for one mode.
type PortfolioUpdate struct {
	TotalValue    float64 `json:"total_value"`
	CashBalance   float64 `json:"cash_balance"`
	DayPnL        float64 `json:"day_pnl"`
	DayPnLPercent float64 `json:"day_pnl_percent"`
	Timestamp     string  `json:"timestamp"`
	PaperTrading  bool    `json:"paper_trading"`
}

func (AuthSuccess) MessageType() string     { return TypeAuthSuccess }
func (AuthFailed) MessageType() string      { return TypeAuthFailed }
func (Pong) MessageType() string            { return TypePong }
func (ServerError) MessageType() string     { return TypeError }
func (MarketData) MessageType() string      { return TypeMarketData }
func (OrderUpdate) MessageType() string     { return TypeOrderUpdate }
func (PositionUpdate) MessageType() string  { return TypePositionUpdate }
func (PortfolioUpdate) MessageType() string { return TypePortfolioUpdate }

// Mode returns the trading mode the order belongs to.
func (o OrderUpdate) Mode() Mode { return ModeFromPaperFlag(o.PaperTrading) }

// Mode returns the trading mode the position belongs to.
func (p PositionUpdate) Mode() Mode { return ModeFromPaperFlag(p.PaperTrading) }

// Mode returns the trading mode the portfolio snapshot belongs to.
func (p PortfolioUpdate) Mode() Mode { return ModeFromPaperFlag(p.PaperTrading) }
