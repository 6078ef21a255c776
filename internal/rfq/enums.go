package rfq

import "encoding/json"

// InstrumentState is the venue lifecycle state of an instrument.
type InstrumentState string

const (
	InstrumentActive  InstrumentState = "ACTIVE"
	InstrumentExpired InstrumentState = "EXPIRED"
)

// State is the venue lifecycle state of an RFQ.
type State string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

// Direction is an order side.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Directions lists both sides in a stable order.
func Directions() [2]Direction {
	return [2]Direction{Buy, Sell}
}

// Source tags which venue interface a raw record came from. REST records are
// bare; WS records arrive wrapped in a JSON-RPC envelope under params.data.
type Source int

const (
	SourceREST Source = iota
	SourceWS
)

// ID decodes a venue identifier that may arrive as a JSON string or number.
// Instrument ids are numeric on the instruments endpoints but quoted inside
// RFQ leg records.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*id = ID(s)
	return nil
}
