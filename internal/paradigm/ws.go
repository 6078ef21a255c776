package paradigm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/metrics"
)

const heartbeatInterval = 5 * time.Second

// WSClient maintains one persistent connection to the Paradigm WebSocket
// interface. It heartbeats every 5 seconds, performs channel subscribe and
// unsubscribe operations, drops RPC acknowledgement frames, and pushes data
// notifications onto the ingestion queue exposed by Messages.
//
// Connection loss is fatal to the client: the message channel is closed and
// recovery is the owning process's responsibility. No reconnect is attempted
// because the venue cancels resting orders on disconnect.
type WSClient struct {
	url           string
	logger        *zap.Logger
	startChannels []string

	conn     *websocket.Conn
	writeMu  sync.Mutex
	messages chan []byte
	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	seq      atomic.Int64
}

// NewWSClient constructs a WebSocket client. startChannels are subscribed as
// soon as the connection is established.
func NewWSClient(connectionURL, accessKey string, startChannels []string, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:           fmt.Sprintf("%s?api-key=%s&cancel_on_disconnect=true", connectionURL, accessKey),
		logger:        logger,
		startChannels: startChannels,
		messages:      make(chan []byte, 1024),
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Connect dials the venue, starts the heartbeat and read loops, marks the
// client ready, and fires the startup subscriptions.
func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("paradigm ws: dial: %w", err)
	}
	c.conn = conn
	c.logger.Info("paradigm.ws_connected")

	go c.heartbeatLoop()
	go c.readLoop()

	// Readiness is a one-shot signal: subscribers block on Ready instead of
	// polling a flag.
	close(c.ready)

	for _, channel := range c.startChannels {
		if err := c.Subscribe(ctx, channel); err != nil {
			return fmt.Errorf("paradigm ws: initial subscribe %s: %w", channel, err)
		}
	}

	return nil
}

// Ready returns a channel closed once the connection is established and
// channel operations may be sent.
func (c *WSClient) Ready() <-chan struct{} {
	return c.ready
}

// Messages returns the ingestion queue of data notification frames. The
// channel is closed when the connection is lost or the client is closed.
func (c *WSClient) Messages() <-chan []byte {
	return c.messages
}

// Subscribe sends a subscribe operation for the given channel, blocking until
// the client is ready.
func (c *WSClient) Subscribe(ctx context.Context, channel string) error {
	return c.channelOperation(ctx, "subscribe", channel)
}

// Unsubscribe sends an unsubscribe operation for the given channel.
func (c *WSClient) Unsubscribe(ctx context.Context, channel string) error {
	return c.channelOperation(ctx, "unsubscribe", channel)
}

func (c *WSClient) channelOperation(ctx context.Context, operation, channel string) error {
	select {
	case <-c.ready:
	case <-c.done:
		return fmt.Errorf("paradigm ws: closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	id := c.seq.Add(1) + 1
	payload := WSMessage{
		ID:      &id,
		JSONRPC: "2.0",
		Method:  operation,
		Params:  &WSParams{Channel: channel},
	}

	c.logger.Debug("paradigm.ws_channel_operation",
		zap.String("operation", operation),
		zap.String("channel", channel))

	return c.send(payload)
}

func (c *WSClient) send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSClient) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	one := int64(1)
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(WSMessage{ID: &one, JSONRPC: "2.0", Method: "heartbeat"}); err != nil {
				c.logger.Warn("paradigm.ws_heartbeat_failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *WSClient) readLoop() {
	defer close(c.messages)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("paradigm.ws_closed")
			} else {
				c.logger.Error("paradigm.ws_read_failed", zap.Error(err))
			}
			return
		}

		if isAcknowledgement(raw) {
			continue
		}

		metrics.IncWSMessage("received")

		select {
		case c.messages <- raw:
		case <-c.done:
			return
		}
	}
}

// isAcknowledgement reports whether the frame is an RPC response rather than
// a data notification. Responses carry a top-level id.
func isAcknowledgement(raw []byte) bool {
	var probe struct {
		ID *json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.ID != nil
}

// Close tears the connection down.
func (c *WSClient) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
