// Package fetcher is the governed HTTP access layer: every upstream request
// is admitted through the concurrency governor and retried on transient
// failures.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/metrics"
	"github.com/JakeFAU/isocatalog/internal/policy/admission"
)

// ErrMalformedURL is returned for URLs that cannot be requested. No network
// call is made for them.
var ErrMalformedURL = errors.New("malformed url")

// Admitter grants admission tickets per host and paces repeat attempts.
type Admitter interface {
	Acquire(ctx context.Context, host string) (admission.Ticket, error)
	Pace(ctx context.Context, host string) error
}

// Config controls request behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	ProbeMethod string
}

// Client fetches upstream resources. It is safe for concurrent use and is
// meant to be constructed once and shared.
type Client struct {
	cfg    Config
	gov    Admitter
	http   *http.Client
	policy RetryPolicy
	logger *zap.Logger
	tracer trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport substitutes the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// WithTracer overrides the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// New builds a Client that admits every request through gov.
func New(cfg Config, gov Admitter, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ProbeMethod == "" {
		cfg.ProbeMethod = http.MethodGet
	}
	c := &Client{
		cfg:    cfg,
		gov:    gov,
		http:   &http.Client{},
		policy: NewRetryPolicy(cfg.MaxRetries, cfg.BackoffBase, cfg.BackoffMax),
		logger: logger.Named("fetcher"),
		tracer: otel.Tracer("github.com/JakeFAU/isocatalog/internal/fetcher"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchText returns the body of rawURL. It reports false when the URL is
// malformed, the request fails after retries, upstream answers with any
// non-success status (429 included), or the body is empty.
func (c *Client) FetchText(ctx context.Context, rawURL string) (string, bool) {
	res, err := c.do(ctx, http.MethodGet, rawURL, true)
	if err != nil {
		c.logger.Warn("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return "", false
	}
	if res.status < 200 || res.status > 299 {
		c.logger.Warn("Fetch returned non-success status",
			zap.String("url", rawURL),
			zap.Int("status", res.status),
		)
		return "", false
	}
	if len(res.body) == 0 {
		c.logger.Warn("Fetch returned empty body", zap.String("url", rawURL))
		return "", false
	}
	return string(res.body), true
}

// FetchJSON fetches rawURL and decodes the body into v.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, v any) bool {
	text, ok := c.FetchText(ctx, rawURL)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		c.logger.Warn("Decode JSON failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	return true
}

// Probe issues a reachability request and returns the final status code.
// Server errors are retried like any other call; the last status is
// returned once retries are exhausted. The body is not read.
func (c *Client) Probe(ctx context.Context, rawURL string) (int, error) {
	res, err := c.do(ctx, c.cfg.ProbeMethod, rawURL, false)
	if err != nil {
		return 0, err
	}
	return res.status, nil
}

type result struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, method, rawURL string, readBody bool) (result, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return result{}, err
	}
	host := u.Hostname()

	ctx, span := c.tracer.Start(ctx, "fetcher."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPURLKey.String(rawURL),
		),
	)
	defer span.End()

	ticket, err := c.gov.Acquire(ctx, host)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission failed")
		return result{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer ticket.Release()

	attempts := 0
	op := func() (result, error) {
		attempts++
		// Acquire paced the first attempt.
		if attempts > 1 {
			if err := c.gov.Pace(ctx, host); err != nil {
				return result{}, backoff.Permanent(err)
			}
		}
		res, err := c.attempt(ctx, method, u, readBody)
		if err == nil && res.status >= http.StatusInternalServerError {
			err = &StatusError{Code: res.status}
		}
		metrics.ObserveFetchAttempt(host, outcome(res.status, err))
		if err != nil && !c.policy.ShouldRetry(ctx, err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.ObserveRetry(host)
		c.logger.Debug("Retrying request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.policy.BackOff()),
		backoff.WithMaxTries(c.policy.MaxAttempts()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	span.SetAttributes(attribute.Int("fetch.attempts", attempts))

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		// Server errors outlived the retry budget; report the final status.
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(statusErr.Code))
		span.SetStatus(codes.Error, statusErr.Error())
		return result{status: statusErr.Code}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return result{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(res.status))
	return res, nil
}

func (c *Client) attempt(ctx context.Context, method string, u *url.URL, readBody bool) (result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, u.String(), nil)
	if err != nil {
		return result{}, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return result{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Close response body failed", zap.Error(closeErr))
		}
	}()

	res := result{status: resp.StatusCode}
	if readBody && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, fmt.Errorf("read body: %w", err)
		}
		res.body = body
	}
	return res, nil
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}
	return u, nil
}

func outcome(status int, err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return "5xx"
	case err != nil:
		return "error"
	case status >= 200 && status <= 299:
		return "2xx"
	case status == http.StatusTooManyRequests:
		return "429"
	case status >= 400:
		return "4xx"
	default:
		return "3xx"
	}
}
