package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/gateway/agents"
	"github.com/shreya-uprety/medforce-gateway/gateway/channels"
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
	"github.com/shreya-uprety/medforce-gateway/gateway/safety"
	"github.com/shreya-uprety/medforce-gateway/payload"
	"github.com/shreya-uprety/medforce-gateway/resilience/idempotency"
)

func newTestGateway(t *testing.T) (*Gateway, *channels.TestHarnessDispatcher) {
	t.Helper()
	harness := channels.NewTestHarnessDispatcher()
	chReg := channels.NewRegistry(zap.NewNop())
	chReg.Register("pre_consultation", harness)

	agentReg := agents.NewRegistry(map[string]agents.Agent{
		"intake": agents.IntakeAgent{},
	})

	gw := New(Config{
		Idempotency: idempotency.NewMemoryTracker(),
		Agents:      agentReg,
		Channels:    chReg,
		Logger:      zap.NewNop(),
	})
	return gw, harness
}

func TestProcessEventRoutesUserMessageToIntakeAgent(t *testing.T) {
	gw, harness := newTestGateway(t)

	env := events.NewUserMessage("PT-1", "hi there")
	result, err := gw.ProcessEvent(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Responses, 1)

	msgs := harness.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "PT-1", msgs[0].PatientID)
}

func TestProcessEventDropsDuplicateEvent(t *testing.T) {
	gw, harness := newTestGateway(t)

	env := events.Envelope{
		EventID:    "evt-1",
		EventType:  events.UserMessage,
		PatientID:  "PT-1",
		SenderRole: events.RolePatient,
		Payload:    payload.FromMap(map[string]any{"text": "hello"}),
	}

	_, err := gw.ProcessEvent(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, harness.Messages(), 1)

	result, err := gw.ProcessEvent(context.Background(), env)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, harness.Messages(), 1, "duplicate event must not be processed again")
}

// TestProcessEventDeniesUnauthorizedHelperEvent covers scenario S5: a
// denied event yields no error but a result containing exactly one
// rejection response whose text names the word "permission".
func TestProcessEventDeniesUnauthorizedHelperEvent(t *testing.T) {
	gw, harness := newTestGateway(t)

	env := events.Envelope{
		EventID:    "evt-2",
		EventType:  events.GPReminder,
		PatientID:  "PT-1",
		SenderID:   "helper-1",
		SenderRole: events.RoleHelper,
		Payload:    payload.Empty(),
	}

	result, err := gw.ProcessEvent(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Responses, 1)
	assert.Contains(t, result.Responses[0].Message, "permission")
	require.Empty(t, result.EmittedEvents)

	msgs := harness.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "permission")
}

// TestProcessEventRateLimitsExcessMessages covers scenario S4: the
// (max+1)-th USER_MESSAGE within the window is not routed to an agent and
// produces exactly one response carrying metadata.rate_limited=true.
func TestProcessEventRateLimitsExcessMessages(t *testing.T) {
	gw, harness := newTestGateway(t)
	gw.rateLimiter = safety.NewRateLimiter(time.Minute, 1)

	first := events.NewUserMessage("PT-RATE", "hi")
	result, err := gw.ProcessEvent(context.Background(), first)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Responses[0].Metadata["rate_limited"])

	second := events.NewUserMessage("PT-RATE", "hi again")
	result, err = gw.ProcessEvent(context.Background(), second)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Responses, 1)
	assert.Equal(t, "true", result.Responses[0].Metadata["rate_limited"])

	msgs := harness.Messages()
	require.Len(t, msgs, 2)
}

// TestProcessEventEmitsCrossPhaseDataWithProvenance covers spec.md §4.7
// and scenario S6: a cross-phase CROSS_PHASE_DATA emission carries
// from_phase and channel alongside _target_agent and text.
func TestProcessEventEmitsCrossPhaseDataWithProvenance(t *testing.T) {
	harness := channels.NewTestHarnessDispatcher()
	chReg := channels.NewRegistry(zap.NewNop())
	chReg.Register("pre_consultation", harness)

	agentReg := agents.NewRegistry(map[string]agents.Agent{
		"booking":  bookingAckOnlyAgent{},
		"clinical": agents.ClinicalAgent{},
	})

	gw := New(Config{
		Idempotency: idempotency.NewMemoryTracker(),
		Agents:      agentReg,
		Channels:    chReg,
		Logger:      zap.NewNop(),
	})

	seed := diary.New("PT-CROSS", "", time.Now().UTC())
	seed.SetPhase(diary.PhaseBooking, time.Now().UTC())
	gw.cache["PT-CROSS"] = &cachedDiary{diary: seed, generation: 0}

	env := events.NewUserMessage("PT-CROSS", "I have a new allergy to penicillin")
	result, err := gw.ProcessEvent(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.EmittedEvents, 1)

	emitted := result.EmittedEvents[0]
	assert.Equal(t, events.CrossPhaseData, emitted.EventType)
	assert.Equal(t, "clinical", emitted.Payload.String("_target_agent"))
	assert.Equal(t, "booking", emitted.Payload.String("from_phase"))
	assert.Equal(t, "websocket", emitted.Payload.String("channel"))
}

// bookingAckOnlyAgent produces no responses of its own so cross-phase
// emission (step 14) is exercised.
type bookingAckOnlyAgent struct{}

func (bookingAckOnlyAgent) Process(event events.Envelope, d *diary.Diary) (agents.AgentResult, error) {
	return agents.AgentResult{UpdatedDiary: d}, nil
}

func TestProcessEventDropsAtMaxChainDepth(t *testing.T) {
	gw, harness := newTestGateway(t)

	env := events.NewUserMessage("PT-1", "hi")
	env.ChainDepth = MaxChainDepth

	_, err := gw.ProcessEvent(context.Background(), env)
	require.Error(t, err)
	assert.Empty(t, harness.Messages())
}

func TestRecentEventsRecordsOutcome(t *testing.T) {
	gw, _ := newTestGateway(t)

	env := events.NewUserMessage("PT-1", "hi")
	_, err := gw.ProcessEvent(context.Background(), env)
	require.NoError(t, err)

	entries := gw.RecentEvents(10)
	require.NotEmpty(t, entries)
	assert.Equal(t, "processed", entries[len(entries)-1].Outcome)
}
