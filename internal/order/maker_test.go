package order

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/rfq"
)

type fakeClient struct {
	mu            sync.Mutex
	createStatus  int
	createBody    json.RawMessage
	replaceStatus int
	replaceBody   json.RawMessage

	creates    []Payload
	replaceIDs []string
	replaces   []Payload
}

func (f *fakeClient) CreateOrder(ctx context.Context, payload any) (int, json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, payload.(Payload))
	return f.createStatus, f.createBody
}

func (f *fakeClient) ReplaceOrder(ctx context.Context, orderID string, payload any) (int, json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceIDs = append(f.replaceIDs, orderID)
	f.replaces = append(f.replaces, payload.(Payload))
	return f.replaceStatus, f.replaceBody
}

func (f *fakeClient) calls() (creates, replaces int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.replaces)
}

type fakeVenueState struct {
	instruments map[string]json.RawMessage
}

func (f *fakeVenueState) RFQs(ctx context.Context, state string) []json.RawMessage   { return nil }
func (f *fakeVenueState) Orders(ctx context.Context, state string) []json.RawMessage { return nil }

func (f *fakeVenueState) Instruments(ctx context.Context, state string) []json.RawMessage {
	return nil
}

func (f *fakeVenueState) Instrument(ctx context.Context, id string) (json.RawMessage, bool) {
	raw, ok := f.instruments[id]
	return raw, ok
}

type fakeMMPSource struct{ triggered bool }

func (f *fakeMMPSource) MMPTriggered(ctx context.Context) bool { return f.triggered }

func (f *fakeMMPSource) ResetMMP(ctx context.Context) (int, json.RawMessage) {
	return http.StatusInternalServerError, nil
}

func trackedRFQ(t *testing.T) (*rfq.Book, *rfq.RFQ) {
	t.Helper()

	venue := &fakeVenueState{instruments: map[string]json.RawMessage{
		"182243": json.RawMessage(`{
			"id": "182243", "venue": "DBT", "kind": "OPTION", "base_currency": "BTC",
			"min_tick_size": "0.5", "min_order_size_increment": "0.1",
			"min_block_size": "25", "state": "ACTIVE"
		}`),
	}}
	instruments := rfq.NewManagedInstruments(venue, time.Hour, zap.NewNop())
	book := rfq.NewBook(venue, instruments, rfq.TakerActions{}, nil, zap.NewNop())

	push := []byte(`{"jsonrpc":"2.0","params":{"channel":"rfqs","data":{
		"id": "rfq-1", "state": "OPEN", "quantity": "25",
		"legs": [{"instrument_id": "182243", "side": "BUY", "ratio": "1"}]
	}}}`)
	book.IngestWSMessage(context.Background(), push)

	r, ok := book.Get("rfq-1")
	require.True(t, ok)

	mark := decimal.RequireFromString("100")
	r.UpdateBBO([]rfq.BBOLeg{{InstrumentID: "182243", MarkPrice: &mark}})
	return book, r
}

func newTestMaker(t *testing.T, client *fakeClient, book *rfq.Book, tripped bool) *Maker {
	t.Helper()
	mmp := rfq.NewManagedMMP(&fakeMMPSource{triggered: tripped}, zap.NewNop())
	mmp.CheckAndReset(context.Background())

	return NewMaker(client, book, mmp, nil, MakerConfig{
		AccountName:         "MAKER1",
		PriceWorseThanMark:  true,
		PricingTickMultiple: 10,
		RefreshWindowLower:  time.Second,
		RefreshWindowUpper:  2 * time.Second,
		OrdersPerSide:       1,
	}, zap.NewNop())
}

func makerLeg(side rfq.Direction, tick, mark string) *rfq.RFQLeg {
	markPrice := decimal.RequireFromString(mark)
	tickSize := decimal.RequireFromString(tick)
	return &rfq.RFQLeg{
		InstrumentID:   "182243",
		Side:           side,
		MinTickSize:    tickSize,
		PricePrecision: rfq.PricePrecision(tick),
		MarkPrice:      &markPrice,
	}
}

func TestPriceLegHedgeKeepsFixedPrice(t *testing.T) {
	fixed := decimal.RequireFromString("30000")
	leg := makerLeg(rfq.Buy, "0.5", "100")
	leg.HedgeLeg = true
	leg.Price = &fixed

	assert.True(t, priceLeg(leg, 4, true).Equal(fixed))
}

func TestPriceLegOffsetsAwayFromMark(t *testing.T) {
	buyLeg := makerLeg(rfq.Buy, "0.5", "100")
	assert.Equal(t, "98", priceLeg(buyLeg, 4, true).String())

	sellLeg := makerLeg(rfq.Sell, "0.5", "100")
	assert.Equal(t, "102", priceLeg(sellLeg, 4, true).String())
}

func TestPriceLegAtMarkWhenNotWorse(t *testing.T) {
	leg := makerLeg(rfq.Buy, "0.5", "100")
	assert.Equal(t, "100", priceLeg(leg, 4, false).String())
}

func TestPriceLegNeverCrossesOwnRestingOrder(t *testing.T) {
	// Buy candidate at 98 would cross a resting sell at 97.5; it must land
	// strictly below the sell.
	buyLeg := makerLeg(rfq.Buy, "0.5", "100")
	sell := decimal.RequireFromString("97.5")
	buyLeg.SellOrderPrice = &sell

	price := priceLeg(buyLeg, 4, true)
	assert.True(t, price.LessThan(sell), "price %s must be below resting sell %s", price, sell)

	// Sell candidate at 102 would cross a resting buy at 103.
	sellLeg := makerLeg(rfq.Sell, "0.5", "100")
	buy := decimal.RequireFromString("103")
	sellLeg.BuyOrderPrice = &buy

	price = priceLeg(sellLeg, 4, true)
	assert.True(t, price.GreaterThan(buy), "price %s must be above resting buy %s", price, buy)
}

func TestPriceLegNeverCrossesAcrossRandomMarks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ticks := []string{"0.0005", "0.01", "0.5", "1"}

	for i := 0; i < 500; i++ {
		tick := ticks[rng.Intn(len(ticks))]
		tickSize := decimal.RequireFromString(tick)
		mult := 1 + rng.Intn(20)

		// Mark well clear of zero so the non-positive fallback never engages,
		// and deliberately off the tick grid.
		mark := tickSize.Mul(decimal.NewFromInt(int64(100 + rng.Intn(10000)))).
			Add(tickSize.Mul(decimal.NewFromFloat(rng.Float64())))

		draw := func() int64 {
			lo := mult / 2
			return int64(lo + rng.Intn(mult-lo+1))
		}

		buyLeg := makerLeg(rfq.Buy, tick, mark.String())
		restingSell := priceLeg(buyLeg, draw(), true)
		buyLeg.SellOrderPrice = &restingSell
		buy := priceLeg(buyLeg, draw(), true)
		assert.True(t, buy.LessThanOrEqual(restingSell),
			"buy %s crossed resting sell %s (mark %s tick %s mult %d)",
			buy, restingSell, mark, tick, mult)

		sellLeg := makerLeg(rfq.Sell, tick, mark.String())
		restingBuy := priceLeg(sellLeg, draw(), true)
		sellLeg.BuyOrderPrice = &restingBuy
		sell := priceLeg(sellLeg, draw(), true)
		assert.True(t, sell.GreaterThanOrEqual(restingBuy),
			"sell %s crossed resting buy %s (mark %s tick %s mult %d)",
			sell, restingBuy, mark, tick, mult)
	}
}

func TestPriceLegNonPositiveFallsBack(t *testing.T) {
	// 100 - 300*0.5 drives the candidate negative; mark is the fallback.
	leg := makerLeg(rfq.Buy, "0.5", "100")
	assert.Equal(t, "100", priceLeg(leg, 300, true).String())

	// A non-positive mark falls back to one tick.
	zeroMark := makerLeg(rfq.Buy, "0.5", "0")
	assert.Equal(t, "0.5", priceLeg(zeroMark, 300, true).String())
}

func TestPriceLegRoundsToTickPrecision(t *testing.T) {
	leg := makerLeg(rfq.Buy, "0.01", "100.12345")
	price := priceLeg(leg, 0, false)
	assert.Equal(t, "100.12", price.StringFixed(2))
}

func TestManageOrderCreatesThenReplaces(t *testing.T) {
	book, r := trackedRFQ(t)
	client := &fakeClient{createStatus: http.StatusCreated, replaceStatus: http.StatusOK}
	maker := newTestMaker(t, client, book, false)

	maker.manageOrder(context.Background(), r, rfq.Buy)
	creates, replaces := client.calls()
	require.Equal(t, 1, creates)
	assert.Equal(t, 0, replaces)

	payload := client.creates[0]
	assert.Equal(t, "rfq-1", payload.RFQID)
	assert.Equal(t, "MAKER1", payload.AccountName)
	assert.Equal(t, orderTypeLimit, payload.Type)
	assert.Equal(t, tifGoodTillCanceled, payload.TimeInForce)
	assert.Equal(t, "25", payload.Quantity)
	assert.Equal(t, "BUY", payload.Side)
	require.Len(t, payload.Legs, 1)
	assert.Equal(t, "182243", payload.Legs[0].InstrumentID)
	assert.Empty(t, payload.Price)

	// The venue confirms the resting order over the stream; the next cycle
	// replaces it.
	require.NoError(t, r.IngestOrderUpdate([]byte(`{"id":"ord-1","rfq_id":"rfq-1","side":"BUY","created_at":1}`)))

	maker.manageOrder(context.Background(), r, rfq.Buy)
	creates, replaces = client.calls()
	assert.Equal(t, 1, creates)
	require.Equal(t, 1, replaces)
	assert.Equal(t, "ord-1", client.replaceIDs[0])
}

func TestManageOrderSkipsWhenMMPTripped(t *testing.T) {
	book, r := trackedRFQ(t)
	client := &fakeClient{createStatus: http.StatusCreated}
	maker := newTestMaker(t, client, book, true)

	maker.manageOrder(context.Background(), r, rfq.Buy)
	creates, replaces := client.calls()
	assert.Zero(t, creates+replaces)
}

func TestManageOrderSkipsWithoutPricing(t *testing.T) {
	book, r := trackedRFQ(t)
	r.UpdateBBO([]rfq.BBOLeg{{InstrumentID: "182243", MarkPrice: nil}})

	client := &fakeClient{createStatus: http.StatusCreated}
	maker := newTestMaker(t, client, book, false)

	maker.manageOrder(context.Background(), r, rfq.Buy)
	creates, replaces := client.calls()
	assert.Zero(t, creates+replaces)
}

func TestManageOrderHonorsSlotGuard(t *testing.T) {
	book, r := trackedRFQ(t)
	client := &fakeClient{createStatus: http.StatusCreated}
	maker := newTestMaker(t, client, book, false)

	require.True(t, r.TryBeginOperation(rfq.Buy))
	maker.manageOrder(context.Background(), r, rfq.Buy)
	creates, replaces := client.calls()
	assert.Zero(t, creates+replaces)
	r.EndOperation(rfq.Buy)

	// The guard is released after a completed operation.
	maker.manageOrder(context.Background(), r, rfq.Buy)
	creates, _ = client.calls()
	assert.Equal(t, 1, creates)
}

func TestSettleStaleOrderResetsSlot(t *testing.T) {
	book, r := trackedRFQ(t)
	require.NoError(t, r.IngestOrderUpdate([]byte(`{"id":"ord-1","rfq_id":"rfq-1","side":"BUY","created_at":1}`)))

	client := &fakeClient{replaceStatus: http.StatusBadRequest}
	maker := newTestMaker(t, client, book, false)

	for _, code := range []int{codeOrderNotFound, codeOrderReplaced} {
		require.NoError(t, r.IngestOrderUpdate([]byte(`{"id":"ord-1","rfq_id":"rfq-1","side":"BUY","created_at":1}`)))
		client.replaceBody = json.RawMessage(fmt.Sprintf(`{"code":%d,"message":"stale"}`, code))

		maker.manageOrder(context.Background(), r, rfq.Buy)
		assert.Empty(t, r.OrderID(rfq.Buy), "code %d must clear the slot", code)
	}
}

func TestSettleClosedRFQTearsDown(t *testing.T) {
	book, r := trackedRFQ(t)
	client := &fakeClient{
		createStatus: http.StatusBadRequest,
		createBody:   json.RawMessage(fmt.Sprintf(`{"code":%d,"message":"closed"}`, codeRFQClosed)),
	}
	maker := newTestMaker(t, client, book, false)

	maker.manageOrder(context.Background(), r, rfq.Buy)
	assert.Equal(t, 0, book.Len())
}

func TestSettlePendingOperationIsSilent(t *testing.T) {
	book, r := trackedRFQ(t)
	client := &fakeClient{
		createStatus: http.StatusBadRequest,
		createBody:   json.RawMessage(fmt.Sprintf(`{"code":%d,"message":"pending"}`, codeOperationPending)),
	}
	maker := newTestMaker(t, client, book, false)

	maker.manageOrder(context.Background(), r, rfq.Buy)
	// Slot state is untouched; the next window simply retries.
	assert.Equal(t, 1, book.Len())
	assert.Empty(t, r.OrderID(rfq.Buy))
	assert.True(t, r.TryBeginOperation(rfq.Buy))
}
