package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

var errProbe = errors.New("probe failure")

// TestProperty_TripsAfterExactlyThresholdFailures checks the invariant the
// Threshold config field promises for any threshold in a realistic range:
// the breaker stays Closed through the first Threshold-1 failures and is
// Open by the time the Threshold'th one lands.
func TestProperty_TripsAfterExactlyThresholdFailures(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("breaker opens exactly at the threshold, not before", prop.ForAll(
		func(threshold int) bool {
			cb := NewCircuitBreaker(&Config{
				Threshold:        threshold,
				Timeout:          time.Second,
				ResetTimeout:     time.Minute,
				HalfOpenMaxCalls: 1,
			}, zap.NewNop())

			for i := 0; i < threshold-1; i++ {
				_ = cb.Call(context.Background(), func() error { return errProbe })
				if cb.State() == StateOpen {
					return false
				}
			}

			_ = cb.Call(context.Background(), func() error { return errProbe })
			return cb.State() == StateOpen
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// TestProperty_SuccessesNeverTripTheBreaker checks that no run of all-success
// calls, however long, opens the breaker.
func TestProperty_SuccessesNeverTripTheBreaker(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("all-success call sequences stay closed", prop.ForAll(
		func(calls int) bool {
			cb := NewCircuitBreaker(DefaultConfig(), zap.NewNop())
			for i := 0; i < calls; i++ {
				if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
					return false
				}
			}
			return cb.State() == StateClosed
		},
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}
