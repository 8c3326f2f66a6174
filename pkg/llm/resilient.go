package llm

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/labinsight-engine/internal/domain"
)

// ResilientClient wraps a ModelClient with a per-model circuit breaker and an
// optional completion cache. Provider outages trip the breaker so a flapping
// backend fails fast instead of stalling every pipeline invocation; an open
// breaker surfaces as an ordinary ModelCallError so callers never branch on
// gobreaker types.
type ResilientClient struct {
	inner  ModelClient
	cache  *CompletionCache
	config domain.BreakerConfig
	logger *logrus.Logger

	breakers   map[string]*gobreaker.CircuitBreaker
	breakersMu sync.Mutex
}

// NewResilientClient wraps inner with circuit breaking and caching. The cache
// may be nil to disable caching.
func NewResilientClient(inner ModelClient, cache *CompletionCache, config domain.BreakerConfig, logger *logrus.Logger) *ResilientClient {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MinRequests == 0 {
		config.MinRequests = 3
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.6
	}

	return &ResilientClient{
		inner:    inner,
		cache:    cache,
		config:   config,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Invoke performs a cached, circuit-broken model invocation
func (r *ResilientClient) Invoke(ctx context.Context, model, systemPrompt, userPrompt string, opts CallOptions) (string, error) {
	// Check cache first
	if r.cache != nil {
		if text, found := r.cache.Get(ctx, model, systemPrompt, userPrompt, opts); found {
			r.logger.WithField("model", model).Debug("Completion served from cache")
			return text, nil
		}
	}

	breaker := r.breakerFor(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return r.inner.Invoke(ctx, model, systemPrompt, userPrompt, opts)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", domain.NewModelCallError(model, "provider unavailable (circuit breaker open)", err)
		}
		if mcErr, ok := err.(*domain.ModelCallError); ok {
			return "", mcErr
		}
		return "", domain.NewModelCallError(model, "invocation failed", err)
	}

	text := result.(string)

	if r.cache != nil {
		if cacheErr := r.cache.Set(ctx, model, systemPrompt, userPrompt, opts, text); cacheErr != nil {
			// Log cache error but don't fail the request
			r.logger.WithError(cacheErr).WithField("model", model).Warn("Failed to cache completion")
		}
	}

	return text, nil
}

// BreakerStates returns the current state of every model's circuit breaker
func (r *ResilientClient) BreakerStates() map[string]gobreaker.State {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()

	states := make(map[string]gobreaker.State, len(r.breakers))
	for name, breaker := range r.breakers {
		states[name] = breaker.State()
	}
	return states
}

// breakerFor returns the circuit breaker for a model, creating it on first use
func (r *ResilientClient) breakerFor(model string) *gobreaker.CircuitBreaker {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()

	if breaker, ok := r.breakers[model]; ok {
		return breaker
	}

	minRequests := r.config.MinRequests
	failureRatio := r.config.FailureRatio

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: r.config.MaxRequests,
		Interval:    r.config.Interval,
		Timeout:     r.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.WithFields(logrus.Fields{
				"model": name,
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("Model circuit breaker state changed")
		},
	})

	r.breakers[model] = breaker
	return breaker
}
