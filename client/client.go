// Package client talks to a JSON document database that exposes every
// location of its tree as {baseURL}/{path}.json.
//
// A Client validates paths, frames URLs, retries 5xx responses with
// exponential backoff and keeps per-attempt metrics. Node binds a path for
// repeated access and Query filters a fetched collection in memory.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

// maxRetryDelay only guards the doubling against overflow.
const maxRetryDelay = time.Duration(math.MaxInt64)

// Client executes requests against one database. It is safe for
// concurrent use.
type Client struct {
	cfg       Config
	transport Transport
	sleep     SleepFunc
	log       hclog.Logger
	metrics   Metrics
	prom      *collectors
	reg       prometheus.Registerer
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the net/http transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithSleep replaces the timer used between retries.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithRegisterer exports attempt metrics to reg in addition to Metrics().
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.reg = reg
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	c := &Client{
		cfg:   cfg,
		sleep: sleepContext,
		log:   hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(cfg.Timeout)
	}
	if c.reg != nil {
		prom, err := newCollectors(c.reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		c.prom = prom
	}
	return c, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Metrics returns the current metrics snapshot.
func (c *Client) Metrics() Snapshot {
	return c.metrics.Snapshot()
}

// Get reads the value at path. A missing location decodes to nil.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	return c.execute(ctx, http.MethodGet, path, nil)
}

// Post appends data as a new child of path.
func (c *Client) Post(ctx context.Context, path string, data any) (any, error) {
	return c.execute(ctx, http.MethodPost, path, data)
}

// Put replaces the value at path.
func (c *Client) Put(ctx context.Context, path string, data any) (any, error) {
	return c.execute(ctx, http.MethodPut, path, data)
}

// Patch merges the keys of data into the value at path.
func (c *Client) Patch(ctx context.Context, path string, data any) (any, error) {
	return c.execute(ctx, http.MethodPatch, path, data)
}

// Delete removes the value at path.
func (c *Client) Delete(ctx context.Context, path string) (any, error) {
	return c.execute(ctx, http.MethodDelete, path, nil)
}

// execute runs one logical call. Every attempt is accounted in the
// metrics; only 5xx responses are retried.
func (c *Client) execute(ctx context.Context, method, path string, data any) (any, error) {
	p, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	var body []byte
	if data != nil {
		if body, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req := &Request{
		Method: method,
		URL:    c.endpoint(p),
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Accept":       []string{"application/json"},
		},
		Body: body,
	}

	bo := c.newBackOff()
	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := c.transport.Send(ctx, req)
		elapsed := time.Since(start)

		if err != nil {
			c.metrics.recordError()
			c.prom.observeTransportError(method)
			c.log.Debug("transport failure", "method", method, "path", p, "attempt", attempt, "error", err)
			return nil, &NetworkError{Err: err}
		}

		ok := resp.StatusCode >= 200 && resp.StatusCode < 300
		c.metrics.recordResponse(elapsed, !ok)
		c.prom.observeResponse(method, resp.StatusCode, elapsed)
		c.log.Debug("attempt complete", "method", method, "path", p, "attempt", attempt,
			"status", resp.StatusCode, "elapsed", elapsed)

		if ok {
			return c.decode(resp.Body)
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < c.cfg.MaxRetries {
			delay := bo.NextBackOff()
			c.prom.observeRetry()
			c.log.Warn("server error, retrying", "method", method, "path", p,
				"status", resp.StatusCode, "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry of %s %s abandoned: %w", method, p, err)
			}
			continue
		}

		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
}

// decode turns a 2xx body into a value. An empty body acknowledges a
// write and decodes to true.
func (c *Client) decode(body []byte) (any, error) {
	if len(body) == 0 {
		return true, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		c.metrics.recordError()
		c.prom.observeDecodeError()
		return nil, &NetworkError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return v, nil
}

// newBackOff yields RetryDelay, 2*RetryDelay, 4*RetryDelay, ...
func (c *Client) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.RetryDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxRetryDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}
