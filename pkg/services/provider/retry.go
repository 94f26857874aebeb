package provider

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the delay randomised, between 0.0 and 1.0.
	Jitter float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns base * 2^(attempt-1), capped at MaxDelay, with jitter applied.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	interval := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if c.MaxDelay > 0 && interval > c.MaxDelay {
		interval = c.MaxDelay
	}

	if c.Jitter > 0 {
		spread := float64(interval) * c.Jitter
		interval += time.Duration(spread * (rand.Float64()*2 - 1))
		if interval < 0 {
			interval = 0
		}
	}
	return interval
}

// Retry runs op until it succeeds, fails with a non-transient error, or attempts run out.
func Retry(ctx context.Context, cfg RetryConfig, onRetry func(attempt int, err error), op func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !Classify(err).Retryable() || attempt == attempts {
			return err
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// CallConfig bounds the vendor API calls made through one session.
type CallConfig struct {
	RatePerSecond float64 // <= 0 disables rate limiting
	Burst         int
	Retry         RetryConfig
}

func DefaultCallConfig() CallConfig {
	return CallConfig{
		RatePerSecond: 10,
		Burst:         20,
		Retry:         DefaultRetryConfig(),
	}
}

// Caller rate-limits vendor API calls and retries transient failures.
// Providers create one per session so limits apply per account.
type Caller struct {
	provider domain.Provider
	limiter  *rate.Limiter
	retry    RetryConfig
	metrics  *metrics.Metrics
}

func NewCaller(provider domain.Provider, cfg CallConfig, m *metrics.Metrics) *Caller {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Caller{
		provider: provider,
		limiter:  limiter,
		retry:    cfg.Retry,
		metrics:  m,
	}
}

func (c *Caller) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	logger := zerolog.Ctx(ctx)
	err := Retry(ctx, c.retry, func(attempt int, err error) {
		c.metrics.ProviderRetry(c.provider.String(), operation)
		logger.Warn().Err(err).
			Str("provider", c.provider.String()).
			Str("operation", operation).
			Int("attempt", attempt).
			Msg("transient provider error, retrying")
	}, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return op(ctx)
	})
	c.metrics.ProviderCall(c.provider.String(), operation, Classify(err).String())
	return err
}
