package api

// API response types for REST endpoints and WebSocket messages

// MarketInfo represents a listed pair's static configuration
type MarketInfo struct {
	Ticker        string `json:"ticker"`        // e.g., "WETH/USDC"
	BaseToken     string `json:"baseToken"`     // ERC-20 address
	BaseDecimals  uint8  `json:"baseDecimals"`
	QuoteToken    string `json:"quoteToken"`    // ERC-20 address
	QuoteDecimals uint8  `json:"quoteDecimals"`
}

// OrderbookSnapshot represents current depth: resting orders per side,
// best price first
type OrderbookSnapshot struct {
	Ticker    string  `json:"ticker"`
	Asks      []Level `json:"asks"`
	Bids      []Level `json:"bids"`
	Timestamp int64   `json:"timestamp"` // Unix seconds
}

// Level is one resting order in a depth snapshot
type Level struct {
	OrderID   string `json:"orderId"`
	Price     string `json:"price"`     // Quote per base, decimal string
	Remaining string `json:"remaining"` // Base units, decimal string
	Timestamp int64  `json:"timestamp"`
}

// SubmitResponse acknowledges an accepted request. Processing is async:
// "queued" means the request entered the pipeline, not that it matched.
type SubmitResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades:WETH/USDC"]
}
