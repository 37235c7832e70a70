package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/observability"
	"github.com/ekaya-inc/querygate/pkg/retry"
)

// CircuitState is the state of a provider's circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures when a provider is considered down.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// ResetAfter is how long the circuit stays open before one probe is allowed.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// CircuitBreaker stops calling a provider after repeated failures.
type CircuitBreaker struct {
	mu               sync.Mutex
	provider         string
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker for provider.
func NewCircuitBreaker(provider string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	return &CircuitBreaker{
		provider:   provider,
		threshold:  cfg.Threshold,
		resetAfter: cfg.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed. An open circuit lets a single
// probe through once ResetAfter has passed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return NewError(ErrorTypeEndpoint, cb.provider,
			fmt.Sprintf("provider unavailable after %d consecutive failures", cb.consecutiveFails), true, nil)
	default:
		return NewError(ErrorTypeEndpoint, cb.provider, "provider recovery probe in progress", true, nil)
	}
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure and opens the circuit at the threshold or
// when a probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GuardedClient wraps a ChatClient with a per-request timeout, retries of
// transient failures and a circuit breaker.
type GuardedClient struct {
	inner   ChatClient
	breaker *CircuitBreaker
	retry   *retry.Config
	timeout time.Duration
	logger  *zap.Logger
}

// NewGuardedClient wraps inner. A zero timeout disables the per-request deadline.
func NewGuardedClient(inner ChatClient, breaker *CircuitBreaker, retryCfg *retry.Config, timeout time.Duration, logger *zap.Logger) *GuardedClient {
	return &GuardedClient{
		inner:   inner,
		breaker: breaker,
		retry:   retryCfg,
		timeout: timeout,
		logger:  logger.Named("llm_guard").With(zap.String("provider", inner.Provider())),
	}
}

func (g *GuardedClient) Provider() string { return g.inner.Provider() }
func (g *GuardedClient) Model() string    { return g.inner.Model() }

func (g *GuardedClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("Circuit open, skipping LLM request", zap.String("state", g.breaker.State().String()))
		return nil, err
	}

	var result *CompletionResult
	err := retry.DoIfRetryable(ctx, g.retry, func() error {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		res, err := g.inner.Complete(callCtx, req)
		if err != nil {
			return ClassifyError(g.inner.Provider(), err)
		}
		result = res
		return nil
	})
	if err != nil {
		g.breaker.RecordFailure()
		observability.ObserveLLMRequest(g.inner.Provider(), observability.OutcomeError)
		return nil, ClassifyError(g.inner.Provider(), err)
	}

	g.breaker.RecordSuccess()
	observability.ObserveLLMRequest(g.inner.Provider(), observability.OutcomeSuccess)
	return result, nil
}

var _ ChatClient = (*GuardedClient)(nil)
