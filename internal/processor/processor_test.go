package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSink) record(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, raw)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type mmpSink struct{ recordingSink }

func (s *mmpSink) IngestUpdate(ctx context.Context, raw []byte) { s.record(raw) }

type bookSink struct{ recordingSink }

func (s *bookSink) IngestWSMessage(ctx context.Context, raw []byte) { s.record(raw) }

func TestProcessorRoutesByChannel(t *testing.T) {
	messages := make(chan []byte, 8)
	mmp := &mmpSink{}
	book := &bookSink{}
	proc := New(messages, mmp, book, zap.NewNop())

	messages <- []byte(`{"params":{"channel":"market_maker_protection","data":{}}}`)
	messages <- []byte(`{"params":{"channel":"rfqs","data":{"id":"rfq-1","state":"OPEN"}}}`)
	messages <- []byte(`{"params":{"channel":"bbo.rfq-1","data":{}}}`)
	messages <- []byte(`{"params":{"channel":"rfq_orders","event":"ADDED","data":{}}}`)
	close(messages)

	proc.Run(context.Background())

	assert.Equal(t, 1, mmp.count())
	assert.Equal(t, 3, book.count())
}

func TestProcessorDropsMalformedFrames(t *testing.T) {
	messages := make(chan []byte, 4)
	mmp := &mmpSink{}
	book := &bookSink{}
	proc := New(messages, mmp, book, zap.NewNop())

	messages <- []byte(`not json`)
	messages <- []byte(`{"jsonrpc":"2.0"}`)
	close(messages)

	proc.Run(context.Background())

	assert.Zero(t, mmp.count())
	assert.Zero(t, book.count())
}

func TestProcessorStopsOnContextCancel(t *testing.T) {
	messages := make(chan []byte)
	proc := New(messages, &mmpSink{}, &bookSink{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop on cancel")
	}
}
