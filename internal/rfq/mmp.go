package rfq

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/metrics"
)

// MMPSource is the slice of the venue REST surface the protection manager
// needs.
type MMPSource interface {
	MMPTriggered(ctx context.Context) bool
	ResetMMP(ctx context.Context) (int, json.RawMessage)
}

// ManagedMMP tracks the desk's market-maker-protection circuit breaker. While
// tripped, order placement halts; the manager re-arms the breaker at the
// venue and lifts the halt only after the venue confirms the reset.
type ManagedMMP struct {
	source MMPSource
	logger *zap.Logger

	triggered atomic.Bool
}

// NewManagedMMP constructs a protection manager. The breaker starts armed.
func NewManagedMMP(source MMPSource, logger *zap.Logger) *ManagedMMP {
	return &ManagedMMP{source: source, logger: logger}
}

// Triggered reports whether order placement is currently halted.
func (m *ManagedMMP) Triggered() bool {
	return m.triggered.Load()
}

// CheckAndReset reads the breaker state from the venue and re-arms it if
// tripped. Run once at startup so a trip from a previous run does not leave
// the desk dark.
func (m *ManagedMMP) CheckAndReset(ctx context.Context) {
	if !m.source.MMPTriggered(ctx) {
		m.triggered.Store(false)
		return
	}

	m.logger.Warn("mmp.tripped_at_startup")
	m.triggered.Store(true)
	m.reset(ctx)
}

// IngestUpdate handles a market_maker_protection channel push. The payload
// carries the breaker state: a push reporting rate_limit_hit lifts the halt
// only when false, and halts ordering and re-arms the breaker when true.
func (m *ManagedMMP) IngestUpdate(ctx context.Context, raw []byte) {
	var envelope struct {
		Params struct {
			Data struct {
				RateLimitHit bool `json:"rate_limit_hit"`
			} `json:"data"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		m.logger.Warn("mmp.push_decode_failed", zap.Error(err))
		return
	}

	if !envelope.Params.Data.RateLimitHit {
		if m.triggered.Swap(false) {
			m.logger.Info("mmp.cleared_by_push")
		}
		return
	}

	m.logger.Warn("mmp.tripped")
	metrics.IncMMPTrip()
	m.triggered.Store(true)
	m.reset(ctx)
}

func (m *ManagedMMP) reset(ctx context.Context) {
	status, _ := m.source.ResetMMP(ctx)
	if status != http.StatusOK {
		m.logger.Error("mmp.reset_failed", zap.Int("status", status))
		return
	}
	m.triggered.Store(false)
	m.logger.Info("mmp.reset")
}
