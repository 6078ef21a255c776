package rfq

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/metrics"
	"github.com/crossbarhq/paradigm-services/internal/paradigm"
)

// RFQSource is the slice of the venue REST surface the book needs for its
// startup snapshot.
type RFQSource interface {
	RFQs(ctx context.Context, state string) []json.RawMessage
	Orders(ctx context.Context, state string) []json.RawMessage
}

// ChannelSubscriber manages per-RFQ WebSocket channel subscriptions.
type ChannelSubscriber interface {
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
}

// RoleActions hooks role-specific behavior into the shared RFQ lifecycle.
type RoleActions interface {
	OnOpened(ctx context.Context, r *RFQ)
	OnClosed(ctx context.Context, rfqID string)
}

// EventSink receives lifecycle events for downstream consumers.
type EventSink interface {
	Publish(eventType string, payload any)
}

// MakerActions follows each tracked RFQ's top-of-book channel so the pricer
// always has fresh reference prices.
type MakerActions struct {
	WS     ChannelSubscriber
	Logger *zap.Logger
}

func (a *MakerActions) OnOpened(ctx context.Context, r *RFQ) {
	if err := a.WS.Subscribe(ctx, paradigm.ChannelBBO+"."+r.ID); err != nil {
		a.Logger.Warn("rfq.bbo_subscribe_failed", zap.String("rfq_id", r.ID), zap.Error(err))
	}
}

func (a *MakerActions) OnClosed(ctx context.Context, rfqID string) {
	if err := a.WS.Unsubscribe(ctx, paradigm.ChannelBBO+"."+rfqID); err != nil {
		a.Logger.Warn("rfq.bbo_unsubscribe_failed", zap.String("rfq_id", rfqID), zap.Error(err))
	}
}

// TakerActions has no per-RFQ side effects; the taker prices off the orders
// already resting on the RFQ.
type TakerActions struct{}

func (TakerActions) OnOpened(context.Context, *RFQ) {}

func (TakerActions) OnClosed(context.Context, string) {}

// Book is the live view of OPEN RFQs, seeded from a REST snapshot and kept
// current by WebSocket deltas. The map lock is never held across a network
// call; role actions run after the map mutation is published.
type Book struct {
	rest        RFQSource
	instruments *ManagedInstruments
	actions     RoleActions
	events      EventSink
	logger      *zap.Logger

	mu   sync.RWMutex
	byID map[string]*RFQ
}

// NewBook constructs an empty book. events may be nil.
func NewBook(rest RFQSource, instruments *ManagedInstruments, actions RoleActions, events EventSink, logger *zap.Logger) *Book {
	return &Book{
		rest:        rest,
		instruments: instruments,
		actions:     actions,
		events:      events,
		logger:      logger,
		byID:        make(map[string]*RFQ),
	}
}

// Seed loads the venue's OPEN RFQs over REST and tracks each one. Records are
// ingested concurrently since enrichment may fetch instruments on demand.
func (b *Book) Seed(ctx context.Context) {
	records := b.rest.RFQs(ctx, string(StateOpen))

	var wg sync.WaitGroup
	for _, raw := range records {
		wg.Add(1)
		go func(raw json.RawMessage) {
			defer wg.Done()
			r, err := Parse(raw, SourceREST)
			if err != nil {
				b.logger.Warn("rfq.seed_parse_failed", zap.Error(err))
				return
			}
			b.track(ctx, r)
		}(raw)
	}
	wg.Wait()

	b.logger.Info("rfq.seeded", zap.Int("count", b.Len()))
}

// SeedOrders folds the caller's resting OPEN orders into the matching RFQ
// slots, so the first maker cycle replaces instead of double-creating.
func (b *Book) SeedOrders(ctx context.Context) int {
	records := b.rest.Orders(ctx, string(StateOpen))

	applied := 0
	for _, raw := range records {
		var rec struct {
			RFQID ID `json:"rfq_id"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		r, ok := b.Get(string(rec.RFQID))
		if !ok {
			continue
		}
		if err := r.IngestOrderUpdate(raw); err != nil {
			b.logger.Warn("rfq.seed_order_failed", zap.Error(err))
			continue
		}
		applied++
	}

	b.logger.Info("rfq.orders_seeded",
		zap.Int("open_orders", len(records)),
		zap.Int("applied", applied))
	return len(records)
}

// track enriches the RFQ's legs, publishes it into the map, and fires the
// role's open hook.
func (b *Book) track(ctx context.Context, r *RFQ) {
	for _, leg := range r.Legs {
		inst, ok := b.instruments.Ensure(ctx, leg.InstrumentID)
		if !ok {
			b.logger.Warn("rfq.enrich_failed",
				zap.String("rfq_id", r.ID),
				zap.String("instrument_id", leg.InstrumentID))
			continue
		}
		leg.Enrich(inst)
	}

	b.mu.Lock()
	b.byID[r.ID] = r
	size := len(b.byID)
	b.mu.Unlock()

	metrics.SetTrackedRFQs(size)
	b.logger.Info("rfq.tracked", zap.String("rfq_id", r.ID), zap.Int("legs", len(r.Legs)))

	if b.events != nil {
		b.events.Publish("rfq.opened", map[string]any{"rfq_id": r.ID, "legs": len(r.Legs)})
	}
	b.actions.OnOpened(ctx, r)
}

// Remove drops the RFQ from the book and fires the role's closed hook. It is
// safe to call for ids the book never tracked.
func (b *Book) Remove(ctx context.Context, rfqID string) {
	b.mu.Lock()
	_, tracked := b.byID[rfqID]
	delete(b.byID, rfqID)
	size := len(b.byID)
	b.mu.Unlock()

	if !tracked {
		return
	}

	metrics.SetTrackedRFQs(size)
	b.logger.Info("rfq.removed", zap.String("rfq_id", rfqID))

	if b.events != nil {
		b.events.Publish("rfq.closed", map[string]any{"rfq_id": rfqID})
	}
	b.actions.OnClosed(ctx, rfqID)
}

// Get returns a tracked RFQ.
func (b *Book) Get(rfqID string) (*RFQ, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.byID[rfqID]
	return r, ok
}

// Len returns the number of tracked RFQs.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// List returns the tracked RFQs in map order.
func (b *Book) List() []*RFQ {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*RFQ, 0, len(b.byID))
	for _, r := range b.byID {
		out = append(out, r)
	}
	return out
}

// IngestWSMessage applies one WebSocket data notification to the book. The
// caller is the single stream consumer, so per-entity ordering is preserved.
func (b *Book) IngestWSMessage(ctx context.Context, raw []byte) {
	var msg paradigm.WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Params == nil {
		b.logger.Warn("rfq.ws_decode_failed", zap.Error(err))
		metrics.IncWSMessage("dropped")
		return
	}

	channel := msg.Params.Channel
	switch {
	case channel == paradigm.ChannelRFQs:
		b.ingestRFQUpdate(ctx, raw)
	case channel == paradigm.ChannelOrders:
		b.ingestOrderUpdate(msg.Params.Data)
	case channel == paradigm.ChannelRFQOrders:
		b.ingestRFQOrderUpdate(msg.Params.Data, msg.Params.Event)
	case strings.HasPrefix(channel, paradigm.ChannelBBO+"."):
		b.ingestBBOUpdate(msg.Params.Data)
	default:
		b.logger.Debug("rfq.ws_channel_ignored", zap.String("channel", channel))
		metrics.IncWSMessage("dropped")
		return
	}

	metrics.IncWSMessage("processed")
}

// ingestRFQUpdate replaces or removes the tracked RFQ for a lifecycle push.
// Any non-OPEN state tears the RFQ down; an OPEN push for a known id installs
// a fresh aggregate, never resurrecting prior order state.
func (b *Book) ingestRFQUpdate(ctx context.Context, raw []byte) {
	r, err := Parse(raw, SourceWS)
	if err != nil {
		b.logger.Warn("rfq.ws_parse_failed", zap.Error(err))
		return
	}

	if r.State == StateOpen {
		b.track(ctx, r)
		return
	}
	b.Remove(ctx, r.ID)
}

func (b *Book) ingestOrderUpdate(data json.RawMessage) {
	var rec struct {
		RFQID ID `json:"rfq_id"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		b.logger.Warn("rfq.ws_order_decode_failed", zap.Error(err))
		return
	}

	r, ok := b.Get(string(rec.RFQID))
	if !ok {
		return
	}
	if err := r.IngestOrderUpdate(data); err != nil {
		b.logger.Warn("rfq.ws_order_apply_failed", zap.Error(err))
	}
}

func (b *Book) ingestRFQOrderUpdate(data json.RawMessage, event string) {
	var rec struct {
		RFQID ID `json:"rfq_id"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		b.logger.Warn("rfq.ws_rfq_order_decode_failed", zap.Error(err))
		return
	}

	r, ok := b.Get(string(rec.RFQID))
	if !ok {
		return
	}
	if err := r.IngestRFQOrderUpdate(data, event); err != nil {
		b.logger.Warn("rfq.ws_rfq_order_apply_failed", zap.Error(err))
	}
}

type bboNotification struct {
	RFQID ID `json:"rfq_id"`
	Legs  []struct {
		InstrumentID ID  `json:"instrument_id"`
		MarkPrice    *ID `json:"mark_price"`
		MinPrice     *ID `json:"min_price"`
		MaxPrice     *ID `json:"max_price"`
	} `json:"legs"`
}

// ingestBBOUpdate refreshes leg reference prices. Pushes for untracked RFQs
// are dropped: an unsubscribe may still be in flight after a removal.
func (b *Book) ingestBBOUpdate(data json.RawMessage) {
	var rec bboNotification
	if err := json.Unmarshal(data, &rec); err != nil {
		b.logger.Warn("rfq.ws_bbo_decode_failed", zap.Error(err))
		return
	}

	r, ok := b.Get(string(rec.RFQID))
	if !ok {
		return
	}

	legs := make([]BBOLeg, 0, len(rec.Legs))
	for _, l := range rec.Legs {
		legs = append(legs, BBOLeg{
			InstrumentID: string(l.InstrumentID),
			MarkPrice:    parseOptionalDecimal(l.MarkPrice),
			MinPrice:     parseOptionalDecimal(l.MinPrice),
			MaxPrice:     parseOptionalDecimal(l.MaxPrice),
		})
	}
	r.UpdateBBO(legs)
}
