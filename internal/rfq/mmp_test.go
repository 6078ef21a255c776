package rfq

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeMMPSource struct {
	triggered   bool
	resetStatus int
	resets      int
}

func (f *fakeMMPSource) MMPTriggered(ctx context.Context) bool {
	return f.triggered
}

func (f *fakeMMPSource) ResetMMP(ctx context.Context) (int, json.RawMessage) {
	f.resets++
	return f.resetStatus, nil
}

func TestCheckAndResetArmedBreaker(t *testing.T) {
	src := &fakeMMPSource{triggered: false}
	mmp := NewManagedMMP(src, zap.NewNop())

	mmp.CheckAndReset(context.Background())
	assert.False(t, mmp.Triggered())
	assert.Equal(t, 0, src.resets)
}

func TestCheckAndResetTrippedBreaker(t *testing.T) {
	src := &fakeMMPSource{triggered: true, resetStatus: http.StatusOK}
	mmp := NewManagedMMP(src, zap.NewNop())

	mmp.CheckAndReset(context.Background())
	assert.False(t, mmp.Triggered())
	assert.Equal(t, 1, src.resets)
}

func mmpPush(hit bool) []byte {
	if hit {
		return []byte(`{"params":{"channel":"market_maker_protection","data":{"rate_limit_hit":true}}}`)
	}
	return []byte(`{"params":{"channel":"market_maker_protection","data":{"rate_limit_hit":false}}}`)
}

func TestIngestUpdateHaltsUntilResetConfirmed(t *testing.T) {
	src := &fakeMMPSource{resetStatus: http.StatusInternalServerError}
	mmp := NewManagedMMP(src, zap.NewNop())

	mmp.IngestUpdate(context.Background(), mmpPush(true))
	// The venue refused the re-arm, so ordering stays halted.
	assert.True(t, mmp.Triggered())

	src.resetStatus = http.StatusOK
	mmp.IngestUpdate(context.Background(), mmpPush(true))
	assert.False(t, mmp.Triggered())
	assert.Equal(t, 2, src.resets)
}

func TestIngestUpdateClearingPushLiftsHalt(t *testing.T) {
	src := &fakeMMPSource{resetStatus: http.StatusInternalServerError}
	mmp := NewManagedMMP(src, zap.NewNop())

	mmp.IngestUpdate(context.Background(), mmpPush(true))
	assert.True(t, mmp.Triggered())

	// The venue itself announces the breaker cleared; no reset is owed even
	// though the earlier re-arm failed.
	mmp.IngestUpdate(context.Background(), mmpPush(false))
	assert.False(t, mmp.Triggered())
	assert.Equal(t, 1, src.resets)
}

func TestIngestUpdateIgnoresMalformedPush(t *testing.T) {
	src := &fakeMMPSource{resetStatus: http.StatusInternalServerError}
	mmp := NewManagedMMP(src, zap.NewNop())

	mmp.IngestUpdate(context.Background(), mmpPush(true))
	mmp.IngestUpdate(context.Background(), []byte(`not json`))
	assert.True(t, mmp.Triggered())
}
