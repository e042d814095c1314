package channels

import (
	"context"
	"sync"
)

// TestHarnessDispatcher records every message sent to it instead of
// delivering anywhere, for use in router tests and the S1-S8 scenario
// tests (spec.md §8).
type TestHarnessDispatcher struct {
	mu         sync.Mutex
	Sent       []OutboundMessage
	FailNext   bool
	FailAlways bool
}

// NewTestHarnessDispatcher returns an empty recording dispatcher.
func NewTestHarnessDispatcher() *TestHarnessDispatcher {
	return &TestHarnessDispatcher{}
}

// Send implements Dispatcher.
func (h *TestHarnessDispatcher) Send(_ context.Context, msg OutboundMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailAlways {
		return errSimulatedFailure
	}
	if h.FailNext {
		h.FailNext = false
		return errSimulatedFailure
	}
	h.Sent = append(h.Sent, msg)
	return nil
}

// Messages returns a copy of every message recorded so far.
func (h *TestHarnessDispatcher) Messages() []OutboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]OutboundMessage, len(h.Sent))
	copy(out, h.Sent)
	return out
}

var errSimulatedFailure = &simulatedError{}

type simulatedError struct{}

func (*simulatedError) Error() string { return "simulated dispatch failure" }
