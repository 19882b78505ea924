package protocol

// Channel names are opaque strings to the server; these constructors are the
// only place the client composes them.

// QuoteChannel names the market-data stream for a symbol.
func QuoteChannel(symbol string) string {
	return "market_data:" + symbol
}

// OrderChannel names the order-update stream for a trading mode.
func OrderChannel(mode Mode) string {
	return "orders:" + string(mode)
}

// PortfolioChannel names the portfolio/position stream for a trading mode.
func PortfolioChannel(mode Mode) string {
	return "portfolio:" + string(mode)
}

// ModeChannels returns the channel set implied by a trading mode.
func ModeChannels(mode Mode) []string {
	return []string{OrderChannel(mode), PortfolioChannel(mode)}
}
