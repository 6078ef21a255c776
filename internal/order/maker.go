package order

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/metrics"
	"github.com/crossbarhq/paradigm-services/internal/paradigm"
	"github.com/crossbarhq/paradigm-services/internal/publisher"
	"github.com/crossbarhq/paradigm-services/internal/rfq"
)

// MakerConfig tunes the quoting loop.
type MakerConfig struct {
	AccountName string

	// PriceWorseThanMark quotes passively away from mark. When false the
	// maker quotes at mark with no offset.
	PriceWorseThanMark bool

	// PricingTickMultiple bounds the random offset, in ticks.
	PricingTickMultiple int

	// Quoting windows open at a random interval inside these bounds.
	RefreshWindowLower time.Duration
	RefreshWindowUpper time.Duration

	// OrdersPerSide tasks are dispatched per (RFQ, side) per burst; the
	// slot guard collapses the extras.
	OrdersPerSide int
}

// Maker quotes both sides of every tracked RFQ. Each open window triggers one
// burst of create/replace operations across the book; rejections are
// classified by venue code and fold back into slot state.
type Maker struct {
	rest   Client
	book   *rfq.Book
	mmp    *rfq.ManagedMMP
	events *publisher.Publisher
	cfg    MakerConfig
	logger *zap.Logger

	permit atomic.Bool
}

// NewMaker constructs the maker loop. events may be nil.
func NewMaker(rest Client, book *rfq.Book, mmp *rfq.ManagedMMP, events *publisher.Publisher, cfg MakerConfig, logger *zap.Logger) *Maker {
	return &Maker{rest: rest, book: book, mmp: mmp, events: events, cfg: cfg, logger: logger}
}

// Run drives the quoting loop until ctx ends.
func (m *Maker) Run(ctx context.Context) {
	go m.windowLoop(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.permit.Load() || m.book.Len() == 0 {
				continue
			}
			m.burst(ctx)
		}
	}
}

// windowLoop re-opens the quoting permit at a random interval inside the
// configured bounds.
func (m *Maker) windowLoop(ctx context.Context) {
	for {
		m.permit.Store(true)

		window := m.cfg.RefreshWindowLower
		if spread := m.cfg.RefreshWindowUpper - m.cfg.RefreshWindowLower; spread > 0 {
			window += time.Duration(rand.Int63n(int64(spread) + 1))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(window):
		}
	}
}

// burst dispatches one operation task per (RFQ, side, slot) and closes the
// permit until the next window.
func (m *Maker) burst(ctx context.Context) {
	for _, r := range m.book.List() {
		sides := rfq.Directions()
		if rand.Intn(2) == 1 {
			sides[0], sides[1] = sides[1], sides[0]
		}
		for _, side := range sides {
			for i := 0; i < m.cfg.OrdersPerSide; i++ {
				go m.manageOrder(ctx, r, side)
			}
		}
	}

	m.permit.Store(false)
}

// manageOrder runs the guarded pipeline for one (RFQ, side) slot: protection
// gate, tracking and state checks, the slot claim, pricing, then the venue
// round trip.
func (m *Maker) manageOrder(ctx context.Context, r *rfq.RFQ, dir rfq.Direction) {
	if m.mmp.Triggered() {
		return
	}
	if _, tracked := m.book.Get(r.ID); !tracked {
		return
	}
	if r.State != rfq.StateOpen {
		return
	}
	if !r.PricingAvailable() {
		return
	}
	if !r.TryBeginOperation(dir) {
		return
	}
	defer r.EndOperation(dir)

	quotes := r.QuoteLegs(dir, func(leg *rfq.RFQLeg) decimal.Decimal {
		return priceLeg(leg, m.offsetTicks(), m.cfg.PriceWorseThanMark)
	})

	legs := make([]Leg, 0, len(quotes))
	for _, q := range quotes {
		legs = append(legs, Leg{InstrumentID: q.InstrumentID, Price: q.Price.StringFixed(q.Precision)})
	}

	payload := Payload{
		RFQID:       r.ID,
		AccountName: m.cfg.AccountName,
		Label:       uuid.NewString(),
		Type:        orderTypeLimit,
		TimeInForce: tifGoodTillCanceled,
		Legs:        legs,
		Quantity:    r.Quantity,
		Side:        string(dir),
	}

	kind := "create"
	var status int
	var raw json.RawMessage
	if orderID := r.OrderID(dir); orderID == "" {
		status, raw = m.rest.CreateOrder(ctx, payload)
	} else {
		kind = "replace"
		status, raw = m.rest.ReplaceOrder(ctx, orderID, payload)
	}

	m.settle(ctx, r, dir, kind, payload.Label, status, raw)
}

// settle folds the venue response back into slot state.
func (m *Maker) settle(ctx context.Context, r *rfq.RFQ, dir rfq.Direction, kind, label string, status int, raw json.RawMessage) {
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		metrics.IncOrderOperation(kind, "ok")
		m.events.Publish("order.submitted", SubmittedEvent{
			RFQID:   r.ID,
			Side:    string(dir),
			Kind:    kind,
			Label:   label,
			Account: m.cfg.AccountName,
		})

	case status == http.StatusBadRequest:
		metrics.IncOrderOperation(kind, "rejected")
		venueErr := paradigm.ParseError(raw)
		switch venueErr.Code {
		case codeOrderNotFound, codeOrderReplaced:
			r.ResetOrderID(dir)
		case codeRFQClosed:
			m.book.Remove(ctx, r.ID)
		case codeOperationPending:
			// Transient; the slot is retried on a later window.
		default:
			m.logger.Warn("maker.order_rejected",
				zap.String("rfq_id", r.ID),
				zap.String("side", string(dir)),
				zap.String("kind", kind),
				zap.Int("code", venueErr.Code),
				zap.String("message", venueErr.Message))
		}

	case status == 0:
		metrics.IncOrderOperation(kind, "transport_error")

	default:
		metrics.IncOrderOperation(kind, "rejected")
		m.logger.Warn("maker.order_failed",
			zap.String("rfq_id", r.ID),
			zap.String("side", string(dir)),
			zap.String("kind", kind),
			zap.Int("status", status))
	}
}

// offsetTicks draws the random tick offset in [multiple/2, multiple].
func (m *Maker) offsetTicks() int64 {
	lo := m.cfg.PricingTickMultiple / 2
	return int64(lo + rand.Intn(m.cfg.PricingTickMultiple-lo+1))
}

// priceLeg quotes one leg. Hedge legs keep their fixed price. Other legs are
// offset from mark away from the leg side, then pushed clear of the quoter's
// own resting opposite price so the maker never trades with itself. A
// non-positive result falls back to mark, then to one tick.
func priceLeg(leg *rfq.RFQLeg, offsetTicks int64, worseThanMark bool) decimal.Decimal {
	if leg.HedgeLeg && leg.Price != nil {
		return *leg.Price
	}

	mark := leg.MinTickSize
	if leg.MarkPrice != nil {
		mark = *leg.MarkPrice
	}

	offset := decimal.Zero
	if worseThanMark {
		offset = leg.MinTickSize.Mul(decimal.NewFromInt(offsetTicks))
	}
	// The anti-cross push must move the price even when quoting at mark.
	step := offset
	if step.IsZero() {
		step = leg.MinTickSize
	}

	var price decimal.Decimal
	if leg.Side == rfq.Buy {
		price = mark.Sub(offset)
		if leg.SellOrderPrice != nil && price.GreaterThanOrEqual(*leg.SellOrderPrice) {
			price = leg.SellOrderPrice.Sub(step)
		}
	} else {
		price = mark.Add(offset)
		if leg.BuyOrderPrice != nil && price.LessThanOrEqual(*leg.BuyOrderPrice) {
			price = leg.BuyOrderPrice.Add(step)
		}
	}

	if price.LessThanOrEqual(decimal.Zero) {
		price = mark
		if price.LessThanOrEqual(decimal.Zero) {
			price = leg.MinTickSize
		}
	}

	return price.Round(leg.PricePrecision)
}
