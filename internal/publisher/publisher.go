// Package publisher emits lifecycle events onto NATS JetStream for
// downstream consumers. A nil *Publisher is valid and drops every event, so
// the bots run unchanged when no broker is configured.
package publisher

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/metrics"
)

// Event is the envelope published for every lifecycle event.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Service   string          `json:"service"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher wraps a NATS JetStream connection for one service.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
	logger  *zap.Logger
}

// New connects the publisher over an established NATS connection.
func New(nc *nats.Conn, subject, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js, subject: subject, service: service, logger: logger}, nil
}

// Publish emits one event of the given type. Failures are logged and counted
// but never propagate: event delivery is best effort and must not stall the
// trading loops.
func (p *Publisher) Publish(eventType string, payload any) {
	if p == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("publisher.marshal_failed", zap.String("type", eventType), zap.Error(err))
		metrics.IncPublishedEvent(eventType, "marshal_failed")
		return
	}

	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Service:   p.service,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("publisher.marshal_failed", zap.String("type", eventType), zap.Error(err))
		metrics.IncPublishedEvent(eventType, "marshal_failed")
		return
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{eventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		p.logger.Warn("publisher.publish_failed", zap.String("type", eventType), zap.Error(err))
		metrics.IncPublishedEvent(eventType, "error")
		return
	}

	metrics.IncPublishedEvent(eventType, "ok")
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
