// Package rfqcreator seeds the venue with random RFQs so the trading loops
// always have flow to quote and lift.
package rfqcreator

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/rfq"
)

// minInstruments gates creation until the initial instrument snapshot has
// landed.
const minInstruments = 50

const (
	venue        = "DBT"
	kind         = "OPTION"
	maxLegs      = 4
	maxRatio     = 3
	maxBlockMult = 2
)

var (
	baseCurrencies = []string{"BTC", "ETH"}

	// Desks invited to every created RFQ.
	counterparties = []string{"DSK94", "AAT42", "AAT44", "AAT43", "ANDY"}
)

// RFQWriter is the slice of the venue REST surface the creator needs.
type RFQWriter interface {
	CreateRFQ(ctx context.Context, payload any) (int, json.RawMessage)
}

// LegPayload is one leg of an RFQ creation request.
type LegPayload struct {
	InstrumentID string `json:"instrument_id"`
	Ratio        string `json:"ratio"`
	Side         string `json:"side"`
}

// Payload is the RFQ creation request body.
type Payload struct {
	Venue            string       `json:"venue"`
	IsTakerAnonymous bool         `json:"is_taker_anonymous"`
	Counterparties   []string     `json:"counterparties"`
	Legs             []LegPayload `json:"legs"`
	Quantity         string       `json:"quantity"`
}

// Creator periodically submits a randomly structured RFQ built from the
// instrument master.
type Creator struct {
	rest        RFQWriter
	instruments *rfq.ManagedInstruments
	interval    time.Duration
	logger      *zap.Logger
}

// New constructs a creator firing every interval.
func New(rest RFQWriter, instruments *rfq.ManagedInstruments, interval time.Duration, logger *zap.Logger) *Creator {
	return &Creator{rest: rest, instruments: instruments, interval: interval, logger: logger}
}

// Run waits for the instrument master to fill, then submits one random RFQ
// per interval until ctx ends.
func (c *Creator) Run(ctx context.Context) {
	if !c.waitForInstruments(ctx) {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		payload, ok := c.randomPayload()
		if ok {
			status, raw := c.rest.CreateRFQ(ctx, payload)
			if status != http.StatusCreated {
				c.logger.Info("rfqcreator.create_failed",
					zap.Int("status", status),
					zap.ByteString("response", raw))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Creator) waitForInstruments(ctx context.Context) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for c.instruments.Count() < minInstruments {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// randomPayload assembles an RFQ of 1 to 4 legs drawn from one venue, kind
// and base currency. The first leg is pinned to ratio 1 and side BUY so the
// structure always has a unit anchor.
func (c *Creator) randomPayload() (Payload, bool) {
	base := baseCurrencies[rand.Intn(len(baseCurrencies))]

	pool := make([]*rfq.Instrument, 0)
	for _, inst := range c.instruments.Snapshot() {
		if inst.Venue == venue && inst.Kind == kind && inst.BaseCurrency == base {
			pool = append(pool, inst)
		}
	}
	if len(pool) == 0 {
		return Payload{}, false
	}

	legCount := 1 + rand.Intn(maxLegs)
	legs := make([]LegPayload, 0, legCount)

	var quantity decimal.Decimal
	for i := 0; i < legCount; i++ {
		inst := pool[rand.Intn(len(pool))]
		side := rfq.Buy
		if rand.Intn(2) == 1 {
			side = rfq.Sell
		}
		legs = append(legs, LegPayload{
			InstrumentID: inst.ID,
			Ratio:        strconv.Itoa(1 + rand.Intn(maxRatio)),
			Side:         string(side),
		})
		// Quantity derives from the last drawn instrument's block size.
		quantity = inst.MinBlockSize
	}

	legs[0].Ratio = "1"
	legs[0].Side = string(rfq.Buy)

	return Payload{
		Venue:            venue,
		IsTakerAnonymous: rand.Intn(2) == 1,
		Counterparties:   counterparties,
		Legs:             legs,
		Quantity:         quantity.Mul(decimal.NewFromInt(int64(1 + rand.Intn(maxBlockMult)))).String(),
	}, true
}
