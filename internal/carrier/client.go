// Package carrier is the HTTP client for the Pickup Mtaani delivery API.
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pickupmtaani/internal/metrics"
)

const (
	// APIKeyHeader carries the static API key on every call.
	APIKeyHeader = "apiKey"

	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 4 << 20
)

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	Verbose    bool
}

// Client is a stateless request/response wrapper; it never retries.
type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	verbose bool
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport, mostly for tests.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLimiter paces outbound calls. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

func NewClient(cfg Config, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		timeout: timeout,
		verbose: cfg.Verbose,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("carrier"),
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether both the API key and base URL are set.
func (c *Client) Configured() bool { return c.apiKey != "" && c.baseURL != "" }

// Get issues GET baseURL+endpoint with the sanitized query.
func (c *Client) Get(ctx context.Context, endpoint string, query map[string]any) Result {
	return c.do(ctx, http.MethodGet, endpoint, nil, query)
}

// Post issues POST baseURL+endpoint with the sanitized payload as JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, payload, query map[string]any) Result {
	if payload == nil {
		payload = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, endpoint, payload, query)
}

func (c *Client) do(ctx context.Context, verb, endpoint string, payload, query map[string]any) Result {
	res := Result{Context: verb + " " + endpoint}
	if !c.Configured() {
		res.Kind = KindNotConfigured
		c.record(verb, res, 0)
		c.debug("API not configured.", res)
		return res
	}

	url := c.baseURL + endpoint
	if qs := encodeQuery(Sanitize(query)); qs != "" {
		url += "?" + qs
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(Sanitize(payload))
		if err != nil {
			return c.fail(verb, res, ReasonTransport, fmt.Errorf("encode payload: %w", err), 0)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fail(verb, res, ReasonTransport, err, 0)
		}
	}
	req, err := http.NewRequestWithContext(ctx, verb, url, body)
	if err != nil {
		return c.fail(verb, res, ReasonTransport, err, 0)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return c.fail(verb, res, ReasonTransport, err, latency)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.fail(verb, res, ReasonTransport, err, latency)
	}
	res.StatusCode = resp.StatusCode
	res.Body = raw
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(verb, res, ReasonHTTPStatus, nil, latency)
	}
	if !json.Valid(raw) {
		return c.fail(verb, res, ReasonDecode, fmt.Errorf("body is not valid JSON"), latency)
	}
	res.Kind = KindOK
	c.record(verb, res, latency)
	return res
}

func (c *Client) fail(verb string, res Result, reason Reason, err error, latency time.Duration) Result {
	res.Kind = KindFailed
	res.Reason = reason
	res.Err = err
	c.record(verb, res, latency)
	c.debug("carrier call failed", res)
	return res
}

func (c *Client) record(verb string, res Result, latency time.Duration) {
	metrics.CarrierRequests.WithLabelValues(verb, res.Outcome()).Inc()
	if latency > 0 {
		metrics.CarrierLatency.WithLabelValues(verb).Observe(latency.Seconds())
	}
}

// debug logs a failure with its call context. Successful calls are never logged.
func (c *Client) debug(msg string, res Result) {
	if !c.verbose {
		return
	}
	fields := []zap.Field{zap.String("call", res.Context), zap.String("outcome", res.Outcome())}
	if res.StatusCode != 0 {
		fields = append(fields, zap.Int("status", res.StatusCode))
	}
	if res.Reason == ReasonHTTPStatus && len(res.Body) > 0 {
		fields = append(fields, zap.ByteString("response", truncate(res.Body, 512)))
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	c.log.Warn(msg, fields...)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
