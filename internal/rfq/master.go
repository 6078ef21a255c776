package rfq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InstrumentSource is the slice of the venue REST surface the master needs.
type InstrumentSource interface {
	Instruments(ctx context.Context, state string) []json.RawMessage
	Instrument(ctx context.Context, instrumentID string) (json.RawMessage, bool)
}

// ManagedInstruments is the in-memory instrument master. A periodic refresh
// folds the venue's ACTIVE set into the view; individual instruments
// referenced by RFQ legs but missing from the view are fetched on demand.
// Nothing is ever evicted: legs may reference instruments that have since
// expired, so once known an instrument stays known until the process exits.
type ManagedInstruments struct {
	source   InstrumentSource
	interval time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	byID map[string]*Instrument
}

// NewManagedInstruments constructs an empty master refreshed every interval.
func NewManagedInstruments(source InstrumentSource, interval time.Duration, logger *zap.Logger) *ManagedInstruments {
	return &ManagedInstruments{
		source:   source,
		interval: interval,
		logger:   logger,
		byID:     make(map[string]*Instrument),
	}
}

// Refresh folds the venue's current ACTIVE instruments into the view,
// inserting or overwriting by id. Instruments already known stay in the view
// even when the ACTIVE set no longer lists them.
func (m *ManagedInstruments) Refresh(ctx context.Context) {
	records := m.source.Instruments(ctx, string(InstrumentActive))

	fetched := make([]*Instrument, 0, len(records))
	for _, raw := range records {
		inst, err := ParseInstrument(raw)
		if err != nil {
			m.logger.Warn("instruments.parse_failed", zap.Error(err))
			continue
		}
		fetched = append(fetched, inst)
	}

	m.mu.Lock()
	for _, inst := range fetched {
		m.byID[inst.ID] = inst
	}
	known := len(m.byID)
	m.mu.Unlock()

	m.logger.Info("instruments.refreshed",
		zap.Int("fetched", len(fetched)),
		zap.Int("known", known))
}

// Run refreshes immediately, then on every interval tick until ctx ends.
func (m *ManagedInstruments) Run(ctx context.Context) {
	m.Refresh(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Get returns the instrument currently in the view.
func (m *ManagedInstruments) Get(instrumentID string) (*Instrument, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.byID[instrumentID]
	return inst, ok
}

// Ensure returns the instrument from the view, fetching and inserting it on a
// miss. RFQ legs may reference instruments the ACTIVE refresh never sees.
func (m *ManagedInstruments) Ensure(ctx context.Context, instrumentID string) (*Instrument, bool) {
	if inst, ok := m.Get(instrumentID); ok {
		return inst, true
	}

	raw, ok := m.source.Instrument(ctx, instrumentID)
	if !ok {
		return nil, false
	}
	inst, err := ParseInstrument(raw)
	if err != nil {
		m.logger.Warn("instruments.parse_failed",
			zap.String("instrument_id", instrumentID),
			zap.Error(err))
		return nil, false
	}

	m.mu.Lock()
	m.byID[inst.ID] = inst
	m.mu.Unlock()

	m.logger.Info("instruments.added_on_demand", zap.String("instrument_id", inst.ID))
	return inst, true
}

// Count returns the number of instruments in the view.
func (m *ManagedInstruments) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Snapshot returns a copy of the current view's instruments.
func (m *ManagedInstruments) Snapshot() []*Instrument {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Instrument, 0, len(m.byID))
	for _, inst := range m.byID {
		out = append(out, inst)
	}
	return out
}
