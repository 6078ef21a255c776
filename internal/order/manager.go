// Package order runs the maker and taker trading loops over the shared RFQ
// book. Both roles tick every 10ms and act only when their pacing window
// permits, so a burst of activity is followed by quiet until the next window.
package order

import (
	"context"
	"encoding/json"
	"time"
)

const tickInterval = 10 * time.Millisecond

// Venue rejection codes acted on by the maker loop.
const (
	// The referenced order no longer exists or was already replaced; the
	// next cycle must create instead of replace.
	codeOrderNotFound = 3009
	codeOrderReplaced = 3001

	// The RFQ is closed at the venue.
	codeRFQClosed = 2001

	// A previous operation on the slot is still settling at the venue.
	codeOperationPending = 3504
)

const (
	orderTypeLimit      = "LIMIT"
	tifGoodTillCanceled = "GOOD_TILL_CANCELED"
	tifFillOrKill       = "FILL_OR_KILL"
)

// Client is the slice of the venue REST surface order placement needs.
type Client interface {
	CreateOrder(ctx context.Context, payload any) (int, json.RawMessage)
	ReplaceOrder(ctx context.Context, orderID string, payload any) (int, json.RawMessage)
}

// Leg is one priced leg of a maker order.
type Leg struct {
	InstrumentID string `json:"instrument_id"`
	Price        string `json:"price"`
}

// Payload is the order submission body. Maker orders price each leg; taker
// orders carry a single package price and no legs.
type Payload struct {
	RFQID       string `json:"rfq_id"`
	AccountName string `json:"account_name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	Legs        []Leg  `json:"legs,omitempty"`
	Price       string `json:"price,omitempty"`
	Quantity    string `json:"quantity"`
	Side        string `json:"side"`
}

// SubmittedEvent is published after every accepted order submission.
type SubmittedEvent struct {
	RFQID   string `json:"rfq_id"`
	Side    string `json:"side"`
	Kind    string `json:"kind"`
	Label   string `json:"label"`
	Account string `json:"account"`
}
