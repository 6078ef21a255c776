package rfq

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricePrecision(t *testing.T) {
	tests := []struct {
		tick string
		want int32
	}{
		{"0.0001", 4},
		{"0.01", 2},
		{"0.1", 1},
		{"1", 0},
		{"5", 0},
		{"0.5", 1},
	}

	for _, tc := range tests {
		t.Run(tc.tick, func(t *testing.T) {
			assert.Equal(t, tc.want, PricePrecision(tc.tick))
		})
	}
}

func TestParseInstrument(t *testing.T) {
	raw := []byte(`{
		"id": 182243,
		"name": "BTC-30JUN23-30000-C",
		"venue": "DBT",
		"kind": "OPTION",
		"base_currency": "BTC",
		"expires_at": 1688112000000,
		"venue_instrument_name": "BTC-30JUN23-30000-C",
		"min_tick_size": "0.0005",
		"min_order_size_increment": "0.1",
		"min_block_size": "25",
		"state": "ACTIVE",
		"greeks": {"mark_price": "0.0625"}
	}`)

	inst, err := ParseInstrument(raw)
	require.NoError(t, err)

	assert.Equal(t, "182243", inst.ID)
	assert.Equal(t, "DBT", inst.Venue)
	assert.Equal(t, "OPTION", inst.Kind)
	assert.Equal(t, "BTC", inst.BaseCurrency)
	assert.Equal(t, InstrumentActive, inst.State)
	assert.True(t, inst.MinTickSize.Equal(decimal.RequireFromString("0.0005")))
	assert.True(t, inst.MinBlockSize.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, int32(4), inst.PricePrecision)
	require.NotNil(t, inst.MarkPrice)
	assert.True(t, inst.MarkPrice.Equal(decimal.RequireFromString("0.0625")))
}

func TestParseInstrumentWithoutGreeks(t *testing.T) {
	raw := []byte(`{
		"id": "7",
		"venue": "DBT",
		"min_tick_size": "1",
		"min_order_size_increment": "1",
		"min_block_size": "10",
		"state": "EXPIRED"
	}`)

	inst, err := ParseInstrument(raw)
	require.NoError(t, err)
	assert.Nil(t, inst.MarkPrice)
	assert.Equal(t, int32(0), inst.PricePrecision)
	assert.Equal(t, InstrumentExpired, inst.State)
}

func TestParseInstrumentRejectsBadTick(t *testing.T) {
	raw := []byte(`{"id": "7", "min_tick_size": "abc", "min_order_size_increment": "1", "min_block_size": "1"}`)
	_, err := ParseInstrument(raw)
	require.Error(t, err)
}
