package rfq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Instrument is the immutable reference data for one tradeable instrument,
// plus the mark price refreshed alongside it. Instances are replaced
// wholesale on refresh, never partially mutated.
type Instrument struct {
	ID                    string
	Name                  string
	Venue                 string
	Kind                  string
	BaseCurrency          string
	ExpiresAt             float64
	VenueName             string
	MinTickSize           decimal.Decimal
	MinOrderSizeIncrement decimal.Decimal
	MinBlockSize          decimal.Decimal
	State                 InstrumentState
	MarkPrice             *decimal.Decimal
	PricePrecision        int32
}

// Numeric fields arrive as quoted decimal strings on some endpoints and bare
// numbers on others, so the record leans on the flexible ID decoder.
type instrumentRecord struct {
	ID                    ID      `json:"id"`
	Name                  string  `json:"name"`
	Venue                 string  `json:"venue"`
	Kind                  string  `json:"kind"`
	BaseCurrency          string  `json:"base_currency"`
	ExpiresAt             float64 `json:"expires_at"`
	VenueInstrumentName   string  `json:"venue_instrument_name"`
	MinTickSize           ID      `json:"min_tick_size"`
	MinOrderSizeIncrement ID      `json:"min_order_size_increment"`
	MinBlockSize          ID      `json:"min_block_size"`
	State                 string  `json:"state"`
	Greeks                *struct {
		MarkPrice ID `json:"mark_price"`
	} `json:"greeks"`
}

// ParseInstrument builds an Instrument from a raw REST record.
func ParseInstrument(raw json.RawMessage) (*Instrument, error) {
	var rec instrumentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("rfq: decode instrument record: %w", err)
	}

	minTick, err := decimal.NewFromString(string(rec.MinTickSize))
	if err != nil {
		return nil, fmt.Errorf("rfq: instrument %s min_tick_size: %w", rec.ID, err)
	}
	minIncr, err := decimal.NewFromString(string(rec.MinOrderSizeIncrement))
	if err != nil {
		return nil, fmt.Errorf("rfq: instrument %s min_order_size_increment: %w", rec.ID, err)
	}
	minBlock, err := decimal.NewFromString(string(rec.MinBlockSize))
	if err != nil {
		return nil, fmt.Errorf("rfq: instrument %s min_block_size: %w", rec.ID, err)
	}

	inst := &Instrument{
		ID:                    string(rec.ID),
		Name:                  rec.Name,
		Venue:                 rec.Venue,
		Kind:                  rec.Kind,
		BaseCurrency:          rec.BaseCurrency,
		ExpiresAt:             rec.ExpiresAt,
		VenueName:             rec.VenueInstrumentName,
		MinTickSize:           minTick,
		MinOrderSizeIncrement: minIncr,
		MinBlockSize:          minBlock,
		State:                 InstrumentState(rec.State),
		PricePrecision:        PricePrecision(string(rec.MinTickSize)),
	}

	if rec.Greeks != nil && rec.Greeks.MarkPrice != "" {
		if mark, err := decimal.NewFromString(string(rec.Greeks.MarkPrice)); err == nil {
			inst.MarkPrice = &mark
		}
	}

	return inst, nil
}

func parseOptionalDecimal(n *ID) *decimal.Decimal {
	if n == nil {
		return nil
	}
	d, err := decimal.NewFromString(string(*n))
	if err != nil {
		return nil
	}
	return &d
}

// PricePrecision derives the number of price decimal places from the decimal
// string representation of a tick size. A tick size with no fractional part
// has precision zero.
func PricePrecision(minTickSize string) int32 {
	_, frac, found := strings.Cut(minTickSize, ".")
	if !found {
		return 0
	}
	return int32(len(frac))
}
