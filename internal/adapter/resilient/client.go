// Package resilient is a GET-only HTTP client that enforces a local rate
// limit and a layered retry policy. It has no knowledge of the Toggl API.
package resilient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"toggl-earnings/internal/metrics"
)

const maxBodyBytes = 32 << 20

// Doer performs a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues rate-limited GET requests under a retry Policy.
type Client struct {
	doer      Doer
	limiter   *rate.Limiter
	policy    Policy
	userAgent string
	timeout   time.Duration
	log       *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Client)

// WithDoer replaces the underlying transport.
func WithDoer(d Doer) Option { return func(c *Client) { c.doer = d } }

// WithRateLimit allows at most calls requests per period.
func WithRateLimit(calls int, period time.Duration) Option {
	return func(c *Client) {
		if calls <= 0 || period <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(period/time.Duration(calls)), calls)
	}
}

func WithPolicy(p Policy) Option { return func(c *Client) { c.policy = p } }

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// WithTimeout sets the per-attempt timeout used when Get is passed zero.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// NewClient returns a client limited to one call per second with the
// DefaultPolicy and a 10s request timeout unless overridden.
func NewClient(log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		doer:    &http.Client{},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		policy:  DefaultPolicy(nil),
		timeout: 10 * time.Second,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches rawURL with params appended to its query. A zero timeout uses
// the client default. 4xx responses are returned as *StatusError without
// retrying; 5xx and transport failures are retried before being returned.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header, params url.Values, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	target := u.String()

	var resp *Response
	err = c.policy.Run(ctx, func(ctx context.Context) error {
		r, err := c.attempt(ctx, target, headers, timeout)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, c.onRetry)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, target string, headers http.Header, timeout time.Duration) (*Response, error) {
	if !c.limiter.Allow() {
		return nil, ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	hr, err := c.doer.Do(req)
	if err != nil {
		c.observe(0)
		return nil, err
	}
	if hr == nil {
		c.observe(0)
		return nil, ErrEmptyResponse
	}
	defer hr.Body.Close()
	c.observe(hr.StatusCode)

	body, err := io.ReadAll(io.LimitReader(hr.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	resp := &Response{StatusCode: hr.StatusCode, Header: hr.Header, Body: body}
	if err := resp.RaiseForStatus(); err != nil {
		return nil, err
	}
	// Toggl always answers 2xx with a JSON document; an empty body is a gap
	// upstream rather than a valid result.
	if len(body) == 0 && hr.StatusCode != http.StatusNoContent {
		return nil, ErrEmptyResponse
	}
	return resp, nil
}

func (c *Client) onRetry(layer string, err error, wait time.Duration) {
	c.log.Debug("retrying request",
		slog.String("layer", layer),
		slog.Duration("wait", wait),
		slog.String("error", err.Error()),
	)
	if c.metrics != nil {
		c.metrics.Retries.WithLabelValues(layer).Inc()
	}
}

func (c *Client) observe(status int) {
	if c.metrics != nil {
		c.metrics.Requests.WithLabelValues(metrics.StatusClass(status)).Inc()
	}
}
