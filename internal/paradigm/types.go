package paradigm

import "encoding/json"

// WebSocket channel base names pushed by the venue.
const (
	ChannelRFQs      = "rfqs"
	ChannelOrders    = "orders"
	ChannelRFQOrders = "rfq_orders"
	ChannelBBO       = "bbo"
	ChannelMMP       = "market_maker_protection"
)

// WSMessage is the JSON-RPC 2.0 envelope used on the WebSocket interface.
// Acknowledgement frames carry a top-level ID matching the request; data
// notifications carry only Params.
type WSMessage struct {
	ID      *int64    `json:"id,omitempty"`
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method,omitempty"`
	Params  *WSParams `json:"params,omitempty"`
}

// WSParams carries the channel name and payload of a data notification.
type WSParams struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// page is the cursor-paginated list envelope returned by collection endpoints.
type page struct {
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// ErrorResponse is the structured body of a 4xx venue rejection.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ParseError decodes a rejection body. A body that does not parse yields a
// zero code, which callers treat as unclassified.
func ParseError(raw json.RawMessage) ErrorResponse {
	var e ErrorResponse
	_ = json.Unmarshal(raw, &e)
	return e
}
