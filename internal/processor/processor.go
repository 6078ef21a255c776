// Package processor drains the WebSocket ingestion queue on a single
// goroutine, preserving per-entity ordering of venue pushes.
package processor

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/paradigm"
)

// MMPSink receives market-maker-protection pushes.
type MMPSink interface {
	IngestUpdate(ctx context.Context, raw []byte)
}

// BookSink receives every other data notification.
type BookSink interface {
	IngestWSMessage(ctx context.Context, raw []byte)
}

// Processor routes frames from one WebSocket stream to the protection
// manager or the RFQ book. Exactly one Run loop consumes the stream.
type Processor struct {
	messages <-chan []byte
	mmp      MMPSink
	book     BookSink
	logger   *zap.Logger
}

// New constructs a processor over the given ingestion queue.
func New(messages <-chan []byte, mmp MMPSink, book BookSink, logger *zap.Logger) *Processor {
	return &Processor{messages: messages, mmp: mmp, book: book, logger: logger}
}

// Run consumes the stream until it closes or ctx ends. A closed stream means
// the connection is gone; the venue has already cancelled resting orders, so
// Run returns and the owning process decides whether to exit.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-p.messages:
			if !ok {
				p.logger.Warn("processor.stream_closed")
				return
			}
			p.dispatch(ctx, raw)
		}
	}
}

func (p *Processor) dispatch(ctx context.Context, raw []byte) {
	var probe struct {
		Params *struct {
			Channel string `json:"channel"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Params == nil {
		p.logger.Warn("processor.frame_decode_failed", zap.Error(err))
		return
	}

	if probe.Params.Channel == paradigm.ChannelMMP {
		p.mmp.IngestUpdate(ctx, raw)
		return
	}
	p.book.IngestWSMessage(ctx, raw)
}
