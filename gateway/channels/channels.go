// Package channels implements the Gateway's outbound channel dispatcher
// registry: named dispatchers that deliver AgentResponses to patients,
// helpers, and GPs over whatever transport the channel name implies
// (spec.md §4.6).
package channels

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/resilience/circuitbreaker"
)

// OutboundMessage is what a dispatcher delivers.
type OutboundMessage struct {
	PatientID string
	ChannelID string // dispatcher-specific recipient address (ws connection id, phone, email...)
	Text      string
	Metadata  map[string]string
}

// Dispatcher delivers an OutboundMessage over one named channel. A
// Dispatcher's Send must be safe to call reentrantly (the router may
// dispatch the next event for the same patient before Send returns, if
// Send is itself async).
type Dispatcher interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Registry maps channel name -> Dispatcher. An unknown channel name is a
// graceful no-op — it must never fail the event pipeline. Each registered
// dispatcher gets its own circuit breaker, so a failing channel (e.g. a
// WebSocket hub with no live connections) short-circuits quickly instead
// of eating the full Send timeout on every subsequent event.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[string]Dispatcher
	breakers    map[string]circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		dispatchers: make(map[string]Dispatcher),
		breakers:    make(map[string]circuitbreaker.CircuitBreaker),
		logger:      logger,
	}
}

// Register associates name with d, overwriting any previous registration
// and resetting its circuit breaker.
func (r *Registry) Register(name string, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchers[name] = d
	r.breakers[name] = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), r.logger)
}

// Dispatch sends msg over channel name. If name has no registered
// dispatcher, this logs and returns nil rather than propagating an error —
// a missing channel must never fail the event pipeline (spec.md §4.6). If
// the channel's circuit breaker is open, Dispatch fails fast without
// calling Send.
func (r *Registry) Dispatch(ctx context.Context, name string, msg OutboundMessage) error {
	r.mu.RLock()
	d, ok := r.dispatchers[name]
	breaker := r.breakers[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("no dispatcher for channel", zap.String("channel", name), zap.String("patient_id", msg.PatientID))
		return nil
	}

	err := breaker.Call(ctx, func() error {
		return d.Send(ctx, msg)
	})
	if err != nil {
		r.logger.Error("dispatch failed", zap.String("channel", name), zap.String("patient_id", msg.PatientID), zap.Error(err))
		return err
	}
	return nil
}
