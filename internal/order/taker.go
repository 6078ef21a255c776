package order

import (
	"context"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/metrics"
	"github.com/crossbarhq/paradigm-services/internal/publisher"
	"github.com/crossbarhq/paradigm-services/internal/rfq"
)

// TakerConfig tunes the aggression loop.
type TakerConfig struct {
	AccountName string

	// At most OpsPerWindow accepted submissions per Window.
	Window       time.Duration
	OpsPerWindow int

	// Deliberation is how long the taker sits on an observed price before
	// crossing it.
	Deliberation time.Duration
}

// Taker lifts prices resting on tracked RFQs. Each tick it considers every
// RFQ with visible competing orders, deliberates, then submits an immediate
// fill-or-kill order against a randomly observed price, throttled to a fixed
// number of accepted submissions per window.
type Taker struct {
	rest   Client
	book   *rfq.Book
	events *publisher.Publisher
	cfg    TakerConfig
	logger *zap.Logger

	permit    atomic.Bool
	submitted atomic.Int64
}

// NewTaker constructs the taker loop. events may be nil.
func NewTaker(rest Client, book *rfq.Book, events *publisher.Publisher, cfg TakerConfig, logger *zap.Logger) *Taker {
	return &Taker{rest: rest, book: book, events: events, cfg: cfg, logger: logger}
}

// Run drives the aggression loop until ctx ends.
func (t *Taker) Run(ctx context.Context) {
	go t.windowLoop(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.permit.Load() || t.book.Len() == 0 {
				continue
			}
			for _, r := range t.book.List() {
				go t.consider(ctx, r)
			}
		}
	}
}

// windowLoop opens a fresh submission window on every period: the permit is
// raised and the accepted-submission counter starts over.
func (t *Taker) windowLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Window)
	defer ticker.Stop()

	t.submitted.Store(0)
	t.permit.Store(true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.submitted.Store(0)
			t.permit.Store(true)
		}
	}
}

// consider runs the guarded pipeline for one RFQ: claim the RFQ-wide guard,
// find a side with competing orders, deliberate, then cross one of them.
func (t *Taker) consider(ctx context.Context, r *rfq.RFQ) {
	if _, tracked := t.book.Get(r.ID); !tracked {
		return
	}
	if r.State != rfq.StateOpen {
		return
	}
	if !r.TryBeginTakerOperation() {
		return
	}
	defer r.EndTakerOperation()

	sides := rfq.Directions()
	if rand.Intn(2) == 1 {
		sides[0], sides[1] = sides[1], sides[0]
	}

	var observedSide rfq.Direction
	available := false
	for _, side := range sides {
		if r.HasRFQOrders(side) {
			observedSide = side
			available = true
			break
		}
	}
	if !available {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(t.cfg.Deliberation):
	}

	// The world moved while deliberating: the RFQ may be gone and the
	// observed side may have emptied.
	if _, tracked := t.book.Get(r.ID); !tracked {
		return
	}
	observed, ok := r.PickRFQOrder(observedSide)
	if !ok {
		return
	}

	if t.submitted.Load() >= int64(t.cfg.OpsPerWindow) {
		return
	}

	payload := Payload{
		RFQID:       r.ID,
		AccountName: t.cfg.AccountName,
		Label:       uuid.NewString(),
		Type:        orderTypeLimit,
		TimeInForce: tifFillOrKill,
		Price:       observed.Price,
		Quantity:    r.Quantity,
		Side:        string(observed.Direction.Opposite()),
	}

	status, _ := t.rest.CreateOrder(ctx, payload)
	if status != http.StatusCreated {
		metrics.IncOrderOperation("take", "rejected")
		t.logger.Debug("taker.order_not_accepted",
			zap.String("rfq_id", r.ID),
			zap.Int("status", status))
		return
	}

	metrics.IncOrderOperation("take", "ok")
	t.events.Publish("order.submitted", SubmittedEvent{
		RFQID:   r.ID,
		Side:    payload.Side,
		Kind:    "take",
		Label:   payload.Label,
		Account: t.cfg.AccountName,
	})

	if t.submitted.Add(1) >= int64(t.cfg.OpsPerWindow) {
		t.permit.Store(false)
	}
}
