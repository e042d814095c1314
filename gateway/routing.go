package gateway

import (
	"github.com/shreya-uprety/medforce-gateway/gateway/diary"
	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

// explicitTarget maps a Strategy-A event type to its hardcoded target
// agent name (spec.md §4.1's explicit routing table). CROSS_PHASE_DATA and
// CROSS_PHASE_REPROMPT are handled specially in resolveTarget since their
// target depends on the payload, not a fixed table entry.
var explicitTarget = map[events.Type]string{
	events.IntakeComplete:      "clinical",
	events.IntakeDataProvided:  "clinical",
	events.ClinicalComplete:    "booking",
	events.BookingComplete:     "monitoring",
	events.NeedsIntakeData:     "intake",
	events.Heartbeat:           "monitoring",
	events.DeteriorationAlert:  "clinical",
	events.RescheduleRequest:   "booking",
	events.GPQuery:             "gp_comms",
	events.GPResponse:          "clinical",
	events.GPReminder:          "gp_comms",
	events.HelperRegistration:  "helper_manager",
	events.HelperVerified:      "helper_manager",
	events.AgentError:          "error_handler",
	events.IntakeFormSubmitted: "intake",
}

// phaseTarget maps a diary phase to the agent that owns it. The closed
// phase has no owning agent (nil target -> dropped).
var phaseTarget = map[diary.Phase]string{
	diary.PhaseIntake:     "intake",
	diary.PhaseClinical:   "clinical",
	diary.PhaseBooking:    "booking",
	diary.PhaseMonitoring: "monitoring",
}

// resolveTarget implements spec.md §4.2 step 9: cross-phase follow-up
// redirect takes priority over explicit/phase routing; CROSS_PHASE_DATA and
// CROSS_PHASE_REPROMPT resolve from payload fields rather than a fixed
// table entry. The second return value reports whether the redirect was
// via the active cross-phase follow-up state, so the caller can stamp
// _cross_phase_followup on the envelope's payload (spec.md §9's documented
// Gateway-private payload keys).
func resolveTarget(env events.Envelope, d *diary.Diary) (string, bool) {
	if d != nil && d.CrossPhaseState.Active && d.CrossPhaseState.AwaitingResponse {
		return d.CrossPhaseState.TargetAgent, true
	}

	switch env.EventType {
	case events.CrossPhaseData:
		return env.Payload.String("_target_agent"), false
	case events.CrossPhaseReprompt:
		return phaseTarget[diary.Phase(env.Payload.String("_pending_phase"))], false
	}

	if env.IsExplicitRoute() {
		return explicitTarget[env.EventType], false
	}
	if env.IsPhaseRoute() && d != nil {
		return phaseTarget[d.Header.CurrentPhase], false
	}
	return "", false
}
