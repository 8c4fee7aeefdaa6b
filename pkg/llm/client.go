package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/lexhaven/docintel/internal/resilience"
)

// Config tunes the resilient client. Zero values fall back to defaults.
type Config struct {
	// CallTimeout bounds each individual attempt. Default: 60s.
	CallTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt. Default: 2.
	MaxRetries int

	// RetryDelay is the base backoff delay between attempts; rate-limited
	// calls prefer the server's Retry-After. Default: 1s.
	RetryDelay time.Duration

	// RPS optionally rate-limits outbound calls. 0 disables the limiter.
	RPS float64

	// Breaker optionally guards the service with a circuit breaker.
	Breaker *resilience.CircuitBreaker
}

// CallRequest is one logical inference call. Nil optional fields take the
// client defaults.
type CallRequest struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	JSONOnly    bool
	MaxRetries  *int
	RetryDelay  *time.Duration
}

// CallResult is a successful inference outcome. WasRetried is surfaced for
// observability.
type CallResult struct {
	Content    string
	TokensUsed int
	WasRetried bool
}

// DefaultTemperature is applied when a request does not set one.
const DefaultTemperature = 0.1

// NewPool creates the process-wide cap on simultaneous outbound inference
// calls. Waiters queue FIFO and are dispatched as slots free.
func NewPool(maxConcurrent int64) *semaphore.Weighted {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return semaphore.NewWeighted(maxConcurrent)
}

// Client is the resilient inference client. Every pipeline stage that talks
// to the model goes through Call.
type Client struct {
	provider Provider
	pool     *semaphore.Weighted
	limiter  *rate.Limiter
	cfg      Config
}

// New creates a resilient client over provider, sharing pool as the
// process-wide concurrency cap.
func New(provider Provider, pool *semaphore.Weighted, cfg Config) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	c := &Client{provider: provider, pool: pool, cfg: cfg}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return c
}

// Call performs an inference call with concurrency limiting, a per-attempt
// timeout, and bounded retries. Each retry releases its slot and re-enters
// the concurrency queue. Non-retryable failures and exhausted retries
// propagate the typed *ClientError.
func (c *Client) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	maxRetries := c.cfg.MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	retryDelay := c.cfg.RetryDelay
	if req.RetryDelay != nil {
		retryDelay = *req.RetryDelay
	}

	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	preq := Request{
		Model:       req.Model,
		System:      req.System,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		JSONOnly:    req.JSONOnly,
	}

	backoff := resilience.BackoffConfig{
		Initial:        retryDelay,
		Max:            30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}

	var lastErr *ClientError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.attempt(ctx, preq)
		if err == nil {
			return &CallResult{
				Content:    resp.Content,
				TokensUsed: resp.InputTokens + resp.OutputTokens,
				WasRetried: attempt > 0,
			}, nil
		}

		lastErr = asClientError(err)
		if !lastErr.Retryable() || attempt == maxRetries || ctx.Err() != nil {
			return nil, lastErr
		}

		delay := backoff.Delay(attempt)
		if lastErr.Kind == KindRateLimited && lastErr.RetryAfter > 0 {
			delay = lastErr.RetryAfter
		}
		zap.L().Warn("llm: retrying call",
			zap.String("model", preq.Model),
			zap.String("kind", string(lastErr.Kind)),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}

	return nil, lastErr
}

// attempt acquires a concurrency slot, runs one provider call under the
// per-call timeout, and releases the slot. Retries call attempt again, so a
// retry waits in the same queue as fresh calls.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errFromTransport(err)
		}
	}

	if err := c.pool.Acquire(ctx, 1); err != nil {
		return nil, errFromTransport(err)
	}
	defer c.pool.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	if c.cfg.Breaker != nil {
		var resp *Response
		err := c.cfg.Breaker.Execute(callCtx, func(ctx context.Context) error {
			var callErr error
			resp, callErr = c.provider.Complete(ctx, req)
			return callErr
		})
		if err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, &ClientError{Kind: KindTransient, Err: err}
			}
			return nil, err
		}
		return resp, nil
	}

	return c.provider.Complete(callCtx, req)
}

// asClientError normalizes any provider failure into a *ClientError,
// classifying unwrapped transport errors conservatively.
func asClientError(err error) *ClientError {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce
	}
	return errFromTransport(err)
}
