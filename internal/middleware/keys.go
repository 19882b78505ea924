package middleware

import "github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"

// Cache keys and tags for the data-fetch entries the stream keeps current.
// The fetch layer stores under the same names, so a patch here lands on the
// entry a subsequent read would hit.

func QuoteKey(symbol string) string { return "quote:" + symbol }

func PortfolioKey(mode protocol.Mode) string { return "portfolio:" + string(mode) }

func PositionsKey(mode protocol.Mode) string { return "positions:" + string(mode) }

func OrderHistoryKey(mode protocol.Mode) string { return "orders:" + string(mode) }

func TagPortfolio(mode protocol.Mode) string { return "portfolio:" + string(mode) }

func TagPositions(mode protocol.Mode) string { return "positions:" + string(mode) }

func TagOrderHistory(mode protocol.Mode) string { return "order-history:" + string(mode) }
