package channels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/resilience/circuitbreaker"
)

func TestDispatchToKnownChannel(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	h := NewTestHarnessDispatcher()
	r.Register("pre_consultation", h)

	err := r.Dispatch(context.Background(), "pre_consultation", OutboundMessage{PatientID: "PT-1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, h.Messages(), 1)
	assert.Equal(t, "hi", h.Messages()[0].Text)
}

func TestDispatchToUnknownChannelIsGraceful(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	err := r.Dispatch(context.Background(), "nonexistent", OutboundMessage{PatientID: "PT-1", Text: "hi"})
	assert.NoError(t, err)
}

func TestDispatchPropagatesDispatcherError(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	h := NewTestHarnessDispatcher()
	h.FailNext = true
	r.Register("monitoring", h)

	err := r.Dispatch(context.Background(), "monitoring", OutboundMessage{PatientID: "PT-1", Text: "hi"})
	assert.Error(t, err)
}

func TestDispatchTripsCircuitBreakerAfterRepeatedFailures(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	h := NewTestHarnessDispatcher()
	h.FailAlways = true
	r.Register("monitoring", h)

	msg := OutboundMessage{PatientID: "PT-1", Text: "hi"}
	for i := 0; i < 5; i++ {
		err := r.Dispatch(context.Background(), "monitoring", msg)
		assert.Error(t, err)
		assert.NotEqual(t, circuitbreaker.ErrCircuitOpen, err)
	}

	err := r.Dispatch(context.Background(), "monitoring", msg)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
