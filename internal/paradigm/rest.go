package paradigm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/crossbarhq/paradigm-services/internal/metrics"
	"github.com/crossbarhq/paradigm-services/internal/rate"
)

// RESTClient issues signed requests against the Paradigm DRFQ REST surface.
//
// The verb methods return (status, body) tuples rather than errors: callers
// run unattended loops and classify rejections by venue error code, so a
// transport failure surfaces as status 0 with a nil body. Collection reads
// swallow non-200 responses and return an empty result set, preserving the
// guarded-abort behavior downstream.
type RESTClient struct {
	baseURL   string
	accessKey string
	secretKey string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger

	// pageDelay spaces out cursor-paginated requests.
	pageDelay time.Duration
}

// NewRESTClient constructs a REST client for the given deployment and keys.
func NewRESTClient(baseURL, accessKey, secretKey string, logger *zap.Logger) *RESTClient {
	return &RESTClient{
		baseURL:   baseURL,
		accessKey: accessKey,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Config{RequestsPerSecond: 10, Burst: 20}),
		logger:    logger,
		pageDelay: time.Second,
	}
}

// do signs and executes a single request. path includes the query string.
func (c *RESTClient) do(ctx context.Context, method, path string, payload []byte) (int, json.RawMessage) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil
	}

	timestamp, signature, err := Sign(method, path, string(payload), c.secretKey)
	if err != nil {
		c.logger.Error("paradigm.sign_failed", zap.Error(err))
		return 0, nil
	}

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		c.logger.Error("paradigm.build_request_failed", zap.Error(err))
		return 0, nil
	}
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set("Authorization", "Bearer "+c.accessKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("paradigm.http_failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		metrics.IncRESTRequest(path, method, "transport_error")
		return 0, nil
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)

	metrics.IncRESTRequest(path, method, strconv.Itoa(resp.StatusCode))
	metrics.ObserveRESTDuration(start, path, method)

	c.logger.Debug("paradigm.http_done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return resp.StatusCode, raw
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, payload any) (int, json.RawMessage) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			c.logger.Error("paradigm.marshal_failed", zap.Error(err))
			return 0, nil
		}
	}
	return c.do(ctx, method, path, body)
}

// Paginate walks a cursor-paginated collection endpoint, concatenating the
// results arrays until the server returns a null next cursor. Any non-200
// response aborts the walk and yields an empty result set.
func (c *RESTClient) Paginate(ctx context.Context, path string) []json.RawMessage {
	status, raw := c.do(ctx, http.MethodGet, path, nil)
	if status != http.StatusOK {
		c.logger.Info("paradigm.paginate_aborted",
			zap.String("path", path),
			zap.Int("status", status))
		return nil
	}

	var p page
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn("paradigm.paginate_decode_failed", zap.String("path", path), zap.Error(err))
		return nil
	}

	results := p.Results
	cursor := p.Next

	for cursor != nil {
		select {
		case <-ctx.Done():
			return results
		case <-time.After(c.pageDelay):
		}

		cursorPath := path + "&cursor=" + *cursor
		status, raw = c.do(ctx, http.MethodGet, cursorPath, nil)
		if status != http.StatusOK {
			c.logger.Info("paradigm.paginate_aborted",
				zap.String("path", cursorPath),
				zap.Int("status", status))
			return nil
		}

		p = page{}
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Warn("paradigm.paginate_decode_failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		results = append(results, p.Results...)
		cursor = p.Next
	}

	return results
}

// Instruments returns all instrument records, optionally filtered by state.
func (c *RESTClient) Instruments(ctx context.Context, state string) []json.RawMessage {
	path := "/v2/drfq/instruments?page_size=100&include_greeks=True"
	if state != "" {
		path = "/v2/drfq/instruments?page_size=100&state=" + state + "&include_greeks=True"
	}
	return c.Paginate(ctx, path)
}

// Instrument returns a single instrument record by id.
func (c *RESTClient) Instrument(ctx context.Context, instrumentID string) (json.RawMessage, bool) {
	status, raw := c.do(ctx, http.MethodGet, "/v2/drfq/instruments/"+instrumentID, nil)
	if status != http.StatusOK {
		c.logger.Info("paradigm.get_instrument_failed",
			zap.String("instrument_id", instrumentID),
			zap.Int("status", status))
		return nil, false
	}
	return raw, true
}

// RFQs returns all RFQ records, optionally filtered by state.
func (c *RESTClient) RFQs(ctx context.Context, state string) []json.RawMessage {
	path := "/v2/drfq/rfqs?page_size=100"
	if state != "" {
		path += "&state=" + state
	}
	return c.Paginate(ctx, path)
}

// Orders returns the caller's order records, optionally filtered by state.
func (c *RESTClient) Orders(ctx context.Context, state string) []json.RawMessage {
	path := "/v2/drfq/orders?page_size=100"
	if state != "" {
		path += "&state=" + state
	}
	return c.Paginate(ctx, path)
}

// CreateRFQ submits a new RFQ.
func (c *RESTClient) CreateRFQ(ctx context.Context, payload any) (int, json.RawMessage) {
	return c.doJSON(ctx, http.MethodPost, "/v2/drfq/rfqs", payload)
}

// CreateOrder submits a new order against an RFQ.
func (c *RESTClient) CreateOrder(ctx context.Context, payload any) (int, json.RawMessage) {
	return c.doJSON(ctx, http.MethodPost, "/v2/drfq/orders", payload)
}

// ReplaceOrder atomically replaces a resting order.
func (c *RESTClient) ReplaceOrder(ctx context.Context, orderID string, payload any) (int, json.RawMessage) {
	return c.doJSON(ctx, http.MethodPut, "/v2/drfq/orders/"+orderID, payload)
}

// MMPTriggered reads the desk's market-maker-protection status. A failed read
// reports triggered, which halts order flow until the next successful read.
func (c *RESTClient) MMPTriggered(ctx context.Context) bool {
	status, raw := c.do(ctx, http.MethodGet, "/v2/drfq/mmp/status", nil)
	if status != http.StatusOK {
		return true
	}
	var body struct {
		RateLimitHit bool `json:"rate_limit_hit"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return true
	}
	return body.RateLimitHit
}

// ResetMMP re-arms market-maker protection after a trip.
func (c *RESTClient) ResetMMP(ctx context.Context) (int, json.RawMessage) {
	return c.do(ctx, http.MethodPut, "/v2/drfq/mmp/status", nil)
}
