package rfq

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// RFQLeg is one instrument side of an RFQ. A leg cannot be priced until it
// has been enriched with its Instrument's attributes and carries a mark
// price.
type RFQLeg struct {
	InstrumentID string
	Side         Direction
	Ratio        string

	// HedgeLeg legs carry a fixed venue-supplied price.
	HedgeLeg bool
	Price    *decimal.Decimal

	// Top-of-book reference pricing, updated in place from BBO pushes.
	MarkPrice *decimal.Decimal
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal

	// Instrument attributes, copied in on enrichment.
	Enriched              bool
	MinTickSize           decimal.Decimal
	MinOrderSizeIncrement decimal.Decimal
	MinBlockSize          decimal.Decimal
	PricePrecision        int32

	// Most recently quoted own-order prices, used to avoid self-crossing.
	BuyOrderPrice  *decimal.Decimal
	SellOrderPrice *decimal.Decimal
}

// Enrich copies pricing attributes from the leg's Instrument.
func (l *RFQLeg) Enrich(inst *Instrument) {
	l.MinTickSize = inst.MinTickSize
	l.MinOrderSizeIncrement = inst.MinOrderSizeIncrement
	l.MinBlockSize = inst.MinBlockSize
	l.PricePrecision = inst.PricePrecision
	l.Enriched = true
}

// Order is the user's own resting order for one (RFQ, direction) slot. An
// empty OrderID means the next operation is a CREATE; a set OrderID means
// REPLACE. The in-flight flag brackets the full network round trip.
type Order struct {
	RFQID     string
	Direction Direction
	OrderID   string
	CreatedAt float64
	inFlight  bool
}

// RFQOrder is a competing counterparty order visible to the Taker.
type RFQOrder struct {
	ID        string
	RFQID     string
	Direction Direction
	Price     string
	Quantity  string
}

// QuotedLeg is one priced leg of an order payload.
type QuotedLeg struct {
	InstrumentID string
	Price        decimal.Decimal
	Precision    int32
}

// BBOLeg is one leg of a best-bid-offer push.
type BBOLeg struct {
	InstrumentID string
	MarkPrice    *decimal.Decimal
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
}

// RFQ is the aggregate root of one trading opportunity: its legs, the user's
// own BUY/SELL order slots, and the competing orders visible on each side.
//
// The embedded mutex guards legs, orders and rfq_orders. It is held only
// across in-memory mutation, never across a network call; in-flight guards
// cover the windows during venue round trips.
type RFQ struct {
	ID                string
	State             State
	Quantity          string
	SideLayeringLimit int

	mu        sync.Mutex
	Legs      map[string]*RFQLeg
	orders    map[Direction]*Order
	rfqOrders map[Direction]map[string]*RFQOrder

	// Taker-side reentrancy guard covering the whole RFQ.
	takerInFlight bool
}

type legRecord struct {
	InstrumentID ID     `json:"instrument_id"`
	Side         string `json:"side"`
	Ratio        ID     `json:"ratio"`

	// Present only on hedge legs.
	Price *ID `json:"price"`
}

type rfqRecord struct {
	ID                ID          `json:"id"`
	State             string      `json:"state"`
	Quantity          ID          `json:"quantity"`
	SideLayeringLimit int         `json:"side_layering_limit"`
	Legs              []legRecord `json:"legs"`
}

// Parse builds a fresh RFQ from a raw record. WS records are unwrapped from
// their JSON-RPC envelope first; REST records are ingested as-is. Every parse
// yields a new aggregate with empty order and rfq_order maps, so a reopened
// id never resurrects prior state.
func Parse(raw json.RawMessage, src Source) (*RFQ, error) {
	if src == SourceWS {
		var envelope struct {
			Params struct {
				Data json.RawMessage `json:"data"`
			} `json:"params"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("rfq: decode ws envelope: %w", err)
		}
		raw = envelope.Params.Data
	}

	var rec rfqRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("rfq: decode rfq record: %w", err)
	}

	r := &RFQ{
		ID:                string(rec.ID),
		State:             State(rec.State),
		Quantity:          string(rec.Quantity),
		SideLayeringLimit: rec.SideLayeringLimit,
		Legs:              make(map[string]*RFQLeg, len(rec.Legs)),
		orders: map[Direction]*Order{
			Buy:  {RFQID: string(rec.ID), Direction: Buy},
			Sell: {RFQID: string(rec.ID), Direction: Sell},
		},
		rfqOrders: map[Direction]map[string]*RFQOrder{
			Buy:  {},
			Sell: {},
		},
	}

	for _, lr := range rec.Legs {
		leg := &RFQLeg{
			InstrumentID: string(lr.InstrumentID),
			Side:         Direction(lr.Side),
			Ratio:        string(lr.Ratio),
		}
		if lr.Price != nil {
			if price, err := decimal.NewFromString(string(*lr.Price)); err == nil {
				leg.HedgeLeg = true
				leg.Price = &price
			}
		}
		r.Legs[leg.InstrumentID] = leg
	}

	return r, nil
}

// UpdateBBO overwrites the reference prices of the referenced legs in place.
// Legs not present on the RFQ are ignored.
func (r *RFQ) UpdateBBO(legs []BBOLeg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, update := range legs {
		leg, ok := r.Legs[update.InstrumentID]
		if !ok {
			continue
		}
		leg.MarkPrice = update.MarkPrice
		leg.MinPrice = update.MinPrice
		leg.MaxPrice = update.MaxPrice
	}
}

// PricingAvailable reports whether every leg carries a mark price.
func (r *RFQ) PricingAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, leg := range r.Legs {
		if leg.MarkPrice == nil {
			return false
		}
	}
	return true
}

// QuoteLegs prices every leg under the RFQ lock using fn and records the
// quoted price on the leg for self-cross avoidance on later cycles. fn must
// be a pure computation.
func (r *RFQ) QuoteLegs(dir Direction, fn func(*RFQLeg) decimal.Decimal) []QuotedLeg {
	r.mu.Lock()
	defer r.mu.Unlock()

	quotes := make([]QuotedLeg, 0, len(r.Legs))
	for _, leg := range r.Legs {
		price := fn(leg)
		if dir == Buy {
			leg.BuyOrderPrice = &price
		} else {
			leg.SellOrderPrice = &price
		}
		quotes = append(quotes, QuotedLeg{
			InstrumentID: leg.InstrumentID,
			Price:        price,
			Precision:    leg.PricePrecision,
		})
	}
	return quotes
}

type orderNotification struct {
	ID        ID      `json:"id"`
	RFQID     ID      `json:"rfq_id"`
	Side      string  `json:"side"`
	CreatedAt float64 `json:"created_at"`
}

// IngestOrderUpdate applies an "orders" channel push for this RFQ: the slot's
// order id and creation time are overwritten from the notification.
func (r *RFQ) IngestOrderUpdate(data json.RawMessage) error {
	var n orderNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rfq: decode order notification: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order := r.orders[Direction(n.Side)]
	if order == nil {
		return fmt.Errorf("rfq: order notification with unknown side %q", n.Side)
	}
	order.OrderID = string(n.ID)
	order.CreatedAt = n.CreatedAt
	return nil
}

type rfqOrderNotification struct {
	ID       ID     `json:"id"`
	RFQID    ID     `json:"rfq_id"`
	Side     string `json:"side"`
	Price    ID     `json:"price"`
	Quantity ID     `json:"quantity"`
}

// IngestRFQOrderUpdate upserts or removes a competing order according to the
// push event tag.
func (r *RFQ) IngestRFQOrderUpdate(data json.RawMessage, event string) error {
	var n rfqOrderNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("rfq: decode rfq_order notification: %w", err)
	}

	dir := Direction(n.Side)

	r.mu.Lock()
	defer r.mu.Unlock()

	side, ok := r.rfqOrders[dir]
	if !ok {
		return fmt.Errorf("rfq: rfq_order notification with unknown side %q", n.Side)
	}

	if event == "REMOVED" {
		delete(side, string(n.ID))
		return nil
	}

	side[string(n.ID)] = &RFQOrder{
		ID:        string(n.ID),
		RFQID:     string(n.RFQID),
		Direction: dir,
		Price:     string(n.Price),
		Quantity:  string(n.Quantity),
	}
	return nil
}

// OrderID returns the venue order id of the slot, empty when the next
// operation must be a CREATE.
func (r *RFQ) OrderID(dir Direction) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[dir].OrderID
}

// ResetOrderID clears the slot's order id so the next cycle issues a CREATE
// instead of a REPLACE. Used when the venue reports the resting order stale.
func (r *RFQ) ResetOrderID(dir Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[dir].OrderID = ""
}

// TryBeginOperation claims the (RFQ, direction) slot for a network round
// trip. It reports false when an operation is already in flight.
func (r *RFQ) TryBeginOperation(dir Direction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := r.orders[dir]
	if order.inFlight {
		return false
	}
	order.inFlight = true
	return true
}

// EndOperation releases the slot. It must run on every exit path of an
// operation, or the slot deadlocks.
func (r *RFQ) EndOperation(dir Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[dir].inFlight = false
}

// TryBeginTakerOperation claims the RFQ-wide taker guard.
func (r *RFQ) TryBeginTakerOperation() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.takerInFlight {
		return false
	}
	r.takerInFlight = true
	return true
}

// EndTakerOperation releases the RFQ-wide taker guard.
func (r *RFQ) EndTakerOperation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.takerInFlight = false
}

// HasRFQOrders reports whether any competing order is visible on the side.
func (r *RFQ) HasRFQOrders(dir Direction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rfqOrders[dir]) > 0
}

// PickRFQOrder returns a uniformly random competing order on the side.
func (r *RFQ) PickRFQOrder(dir Direction) (RFQOrder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	side := r.rfqOrders[dir]
	if len(side) == 0 {
		return RFQOrder{}, false
	}

	ids := make([]string, 0, len(side))
	for id := range side {
		ids = append(ids, id)
	}
	return *side[ids[rand.Intn(len(ids))]], true
}

// RFQOrderCount returns the number of competing orders on the side.
func (r *RFQ) RFQOrderCount(dir Direction) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rfqOrders[dir])
}
