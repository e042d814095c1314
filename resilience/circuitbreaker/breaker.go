package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed is the normal operating state.
	StateClosed State = iota
	// StateOpen rejects calls outright.
	StateOpen
	// StateHalfOpen allows a limited number of trial calls.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// Threshold is the consecutive-failure count that trips the breaker.
	Threshold int

	// Timeout bounds a single call.
	Timeout time.Duration

	// ResetTimeout is how long Open is held before trying HalfOpen.
	ResetTimeout time.Duration

	// HalfOpenMaxCalls caps concurrent trial calls while HalfOpen.
	HalfOpenMaxCalls int

	// OnStateChange is invoked (async) on every transition.
	OnStateChange func(from State, to State)
}

// DefaultConfig returns sane defaults for wrapping an outbound channel
// dispatcher call.
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker wraps calls with failure-triggered short-circuiting.
type CircuitBreaker interface {
	// Call executes fn, returning ErrCircuitOpen if the breaker is tripped.
	Call(ctx context.Context, fn func() error) error

	// CallWithResult executes fn and returns its result.
	CallWithResult(ctx context.Context, fn func() (any, error)) (any, error)

	// State returns the current state.
	State() State

	// Reset forces the breaker back to Closed.
	Reset()
}

// breaker is the default CircuitBreaker implementation.
type breaker struct {
	config *Config
	logger *zap.Logger

	mu                sync.RWMutex
	state             State
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// NewCircuitBreaker creates a circuit breaker. This is a general-purpose
// breaker, distinct from the Gateway router's own chain-depth counter
// (spec.md §4.2 step 4) — this one wraps individual outbound calls (e.g. a
// channel dispatcher's send), not event-chain recursion.
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}

	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}

	return &breaker{
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// Call implements CircuitBreaker.Call.
func (b *breaker) Call(ctx context.Context, fn func() error) error {
	_, err := b.CallWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// CallWithResult implements CircuitBreaker.CallWithResult.
func (b *breaker) CallWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resultCh := make(chan callResult, 1)
	go func() {
		result, err := fn()
		resultCh <- callResult{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		err := fmt.Errorf("call timed out: %w", callCtx.Err())
		b.afterCall(false)
		return nil, err

	case res := <-resultCh:
		// Errors the caller itself caused (bad input, not-found dispatcher)
		// should not count toward tripping the breaker.
		success := res.err == nil || isClientError(res.err)
		b.afterCall(success)

		if !success {
			return nil, res.err
		}

		return res.result, nil
	}
}

type callResult struct {
	result any
	err    error
}

// isClientError reports whether err reflects a caller mistake rather than a
// transient failure of the downstream call, so it should not count toward
// tripping the breaker.
func isClientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, code := range []string{
		"INVALID_REQUEST", "PERMISSION_DENIED", "NOT_FOUND", "UNAUTHORIZED",
	} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenCallCount = 0
			b.logger.Info("circuit breaker entering half-open")
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", b.state)
	}
}

func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0

	case StateHalfOpen:
		b.logger.Info("circuit breaker recovered",
			zap.Int("half_open_calls", b.halfOpenCallCount),
		)
		b.setState(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0

	case StateOpen:
		b.logger.Warn("circuit breaker received success while open")
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("circuit breaker tripped",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			b.setState(StateOpen)
		}

	case StateHalfOpen:
		b.logger.Warn("circuit breaker failed in half-open, reopening",
			zap.Int("half_open_calls", b.halfOpenCallCount),
		)
		b.setState(StateOpen)
		b.halfOpenCallCount = 0

	case StateOpen:
		b.logger.Warn("circuit breaker received failure while open")
	}
}

func (b *breaker) setState(newState State) {
	oldState := b.state
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// State implements CircuitBreaker.State.
func (b *breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset implements CircuitBreaker.Reset.
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0

	b.logger.Info("circuit breaker reset", zap.String("from_state", oldState.String()))

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, StateClosed)
	}
}

var (
	// ErrCircuitOpen is returned while the breaker is Open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyCallsInHalfOpen is returned when the HalfOpen trial quota is exhausted.
	ErrTooManyCallsInHalfOpen = errors.New("too many calls while half-open")
)
