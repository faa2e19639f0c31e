// Package provider holds the HTTP adapters of the enrichment providers and of the profile and
// goal generation services. Every adapter shares one resilient client: a token bucket rate
// limiter, bounded exponential retry on 429 and 5xx answers and a circuit breaker per provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/meetprep/backend/internal/infrastructure/telemetry"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize limits the provider response body
const maxResponseSize = 4 * 1024 * 1024

// CallRecorder receives one observation per provider call. telemetry.BusMetrics implements it.
type CallRecorder interface {
	RecordProviderCall(ctx context.Context, provider, outcome string, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordProviderCall(context.Context, string, string, time.Duration) {}

// Client performs JSON calls against one provider endpoint
type Client struct {
	name       string
	cfg        config.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	recorder   CallRecorder
	newBackOff func() backoff.BackOff
}

// Option is a functional option for Client
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCallRecorder sets the metrics sink
func WithCallRecorder(r CallRecorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithBackOff sets the retry schedule factory
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = f
	}
}

// NewClient creates a client for the provider described by cfg
func NewClient(cfg config.ProviderConfig, logger *zap.Logger, opts ...Option) *Client {
	name := cfg.Name
	if name == "" {
		name = "provider"
	}
	c := &Client{
		name: name,
		cfg:  cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:  newLimiter(cfg.RateLimit, cfg.Burst),
		logger:   logger.With(zap.String("provider", name)),
		recorder: noopRecorder{},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			threshold := cfg.BreakerFailures
			if threshold == 0 {
				threshold = 5
			}
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("provider circuit breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// an unknown identifier or a cancelled call says nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, shared.ErrProviderNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})
	return c
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Name returns the provider name
func (c *Client) Name() string {
	return c.name
}

// State returns the breaker state
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Do sends one request and decodes the JSON object it answers. identifier only labels errors.
func (c *Client) Do(ctx context.Context, method, path, identifier string, body any) (shared.Payload, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.withRetry(ctx, method, path, identifier, body)
	})
	c.recorder.RecordProviderCall(ctx, c.name, outcomeOf(err), time.Since(start))
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &shared.ProviderError{Provider: c.name, Identifier: identifier, Err: err}
		}
		return nil, err
	}
	return res.(shared.Payload), nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, shared.ErrProviderNotFound):
		return telemetry.OutcomeNotFound
	default:
		return telemetry.OutcomeFailure
	}
}

func (c *Client) withRetry(ctx context.Context, method, path, identifier string, body any) (shared.Payload, error) {
	var encoded []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &shared.ProviderError{Provider: c.name, Identifier: identifier, Err: fmt.Errorf("encode request: %w", err)}
		}
		encoded = data
	}

	retries := c.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(retries)), ctx)

	op := func() (shared.Payload, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(&shared.ProviderError{Provider: c.name, Identifier: identifier, Err: err})
		}
		return c.attempt(ctx, method, path, identifier, encoded)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying provider call",
			zap.String("identifier", identifier),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

// attempt performs a single HTTP exchange. Errors not worth retrying are wrapped in
// backoff.Permanent.
func (c *Client) attempt(ctx context.Context, method, path, identifier string, body []byte) (shared.Payload, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(&shared.ProviderError{Provider: c.name, Identifier: identifier, Err: err})
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		perr := &shared.ProviderError{Provider: c.name, Identifier: identifier, Err: err}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(perr)
		}
		return nil, perr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &shared.ProviderError{Provider: c.name, Identifier: identifier, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(&shared.ProviderError{
			Provider: c.name, Identifier: identifier, StatusCode: resp.StatusCode, Err: shared.ErrProviderNotFound,
		})
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &shared.ProviderError{
			Provider: c.name, Identifier: identifier, StatusCode: resp.StatusCode, Err: errors.New(snippet(data)),
		}
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(&shared.ProviderError{
			Provider: c.name, Identifier: identifier, StatusCode: resp.StatusCode, Err: errors.New(snippet(data)),
		})
	}

	var doc map[string]any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, backoff.Permanent(&shared.ProviderError{
				Provider: c.name, Identifier: identifier, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err),
			})
		}
	}
	if len(doc) == 0 {
		return nil, backoff.Permanent(&shared.ProviderError{
			Provider: c.name, Identifier: identifier, StatusCode: resp.StatusCode, Err: shared.ErrProviderNotFound,
		})
	}
	return shared.Payload(doc), nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}
