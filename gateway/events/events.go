// Package events defines EventEnvelope, the universal wire format that
// every signal entering the Gateway's control loop is wrapped in, and the
// two routing-strategy partitions described in spec.md §4.1.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shreya-uprety/medforce-gateway/payload"
)

// Type is the closed universe of event types the Gateway recognises.
type Type string

const (
	// External events.
	UserMessage      Type = "USER_MESSAGE"
	DocumentUploaded Type = "DOCUMENT_UPLOADED"
	Webhook          Type = "WEBHOOK"
	DoctorCommand    Type = "DOCTOR_COMMAND"

	// Agent hand-off events, looped back through the Gateway.
	IntakeComplete      Type = "INTAKE_COMPLETE"
	IntakeDataProvided  Type = "INTAKE_DATA_PROVIDED"
	ClinicalComplete    Type = "CLINICAL_COMPLETE"
	BookingComplete     Type = "BOOKING_COMPLETE"
	NeedsIntakeData     Type = "NEEDS_INTAKE_DATA"
	DeteriorationAlert  Type = "DETERIORATION_ALERT"
	RescheduleRequest   Type = "RESCHEDULE_REQUEST"

	// GP communication events.
	GPQuery    Type = "GP_QUERY"
	GPResponse Type = "GP_RESPONSE"
	GPReminder Type = "GP_REMINDER"

	// Helper management events.
	HelperRegistration Type = "HELPER_REGISTRATION"
	HelperVerified     Type = "HELPER_VERIFIED"

	// Cross-phase content routing.
	CrossPhaseData     Type = "CROSS_PHASE_DATA"
	CrossPhaseReprompt Type = "CROSS_PHASE_REPROMPT"

	// Form-based intake.
	IntakeFormSubmitted Type = "INTAKE_FORM_SUBMITTED"

	// System events.
	Heartbeat Type = "HEARTBEAT"
	AgentError Type = "AGENT_ERROR"
)

// SenderRole identifies who originated an event.
type SenderRole string

const (
	RolePatient SenderRole = "patient"
	RoleHelper  SenderRole = "helper"
	RoleGP      SenderRole = "gp"
	RoleSystem  SenderRole = "system"
	RoleAgent   SenderRole = "agent"
)

// explicitRoutes holds every event type routed by Strategy A (a
// hardcoded target agent, see routing.go).
var explicitRoutes = map[Type]bool{
	IntakeComplete:      true,
	IntakeDataProvided:  true,
	ClinicalComplete:    true,
	BookingComplete:     true,
	NeedsIntakeData:     true,
	Heartbeat:           true,
	DeteriorationAlert:  true,
	RescheduleRequest:   true,
	GPQuery:             true,
	GPResponse:          true,
	GPReminder:          true,
	HelperRegistration:  true,
	HelperVerified:      true,
	AgentError:          true,
	CrossPhaseData:      true,
	CrossPhaseReprompt:  true,
	IntakeFormSubmitted: true,
}

// phaseRoutes holds every event type routed by Strategy B (diary
// current_phase lookup, see routing.go). Strategy A and Strategy B
// partition the full Type universe without overlap or gap.
var phaseRoutes = map[Type]bool{
	UserMessage:      true,
	DocumentUploaded: true,
	Webhook:          true,
	DoctorCommand:    true,
}

// Envelope is the only object that enters the Gateway's processing loop.
// The Gateway routes on envelope metadata; of Payload it reads only the
// "text" field (truncation and cross-phase detection) and the
// Gateway-private "_target_agent" and "_pending_phase" keys that route
// CROSS_PHASE_DATA and CROSS_PHASE_REPROMPT.
type Envelope struct {
	EventID       string         `json:"event_id"`
	EventType     Type           `json:"event_type"`
	PatientID     string         `json:"patient_id"`
	Payload       payload.Value  `json:"payload"`
	Source        string         `json:"source,omitempty"`
	SenderID      string         `json:"sender_id,omitempty"`
	SenderRole    SenderRole     `json:"sender_role"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`

	// ChainDepth tracks agent hand-off recursion (spec.md §4.2/§5) and is
	// never serialised to external callers.
	ChainDepth int `json:"-"`

	// SourceChatChannel propagates the originating chat channel across a
	// monitoring-phase hand-off (spec.md's MONITORING-only quirk,
	// preserved from the original implementation — see DESIGN.md).
	SourceChatChannel string `json:"-"`
}

// NewUserMessage builds a patient-originated USER_MESSAGE envelope.
func NewUserMessage(patientID, text string, opts ...func(*Envelope)) Envelope {
	e := Envelope{
		EventID:   uuid.NewString(),
		EventType: UserMessage,
		PatientID: patientID,
		Payload: payload.FromMap(map[string]any{
			"text":        text,
			"channel":     "websocket",
			"attachments": []string{},
		}),
		Source:     "websocket",
		SenderID:   "PATIENT",
		SenderRole: RolePatient,
		Timestamp:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// NewHandoff builds an internal, agent-originated hand-off envelope.
func NewHandoff(eventType Type, patientID, sourceAgent string, pl payload.Value) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		PatientID:  patientID,
		Payload:    pl,
		Source:     sourceAgent,
		SenderID:   sourceAgent,
		SenderRole: RoleAgent,
		Timestamp:  time.Now().UTC(),
	}
}

// NewExternal builds an envelope for an event arriving over the HTTP
// ingress API (spec.md's DOCTOR_COMMAND/WEBHOOK/etc. external events),
// as opposed to NewUserMessage's chat-specific shape or NewHandoff's
// agent-originated shape.
func NewExternal(eventType Type, patientID string, pl payload.Value, opts ...func(*Envelope)) Envelope {
	e := Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		PatientID:  patientID,
		Payload:    pl,
		Source:     "api",
		SenderRole: RoleSystem,
		Timestamp:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// NewHeartbeat builds a system-originated HEARTBEAT envelope.
func NewHeartbeat(patientID string, daysSince int, milestone string) Envelope {
	return Envelope{
		EventID:   uuid.NewString(),
		EventType: Heartbeat,
		PatientID: patientID,
		Payload: payload.FromMap(map[string]any{
			"days_since_appointment": daysSince,
			"milestone":              milestone,
		}),
		Source:     "heartbeat_scheduler",
		SenderID:   "system",
		SenderRole: RoleSystem,
		Timestamp:  time.Now().UTC(),
	}
}

// IsExplicitRoute reports whether e uses Strategy A (hardcoded target).
func (e Envelope) IsExplicitRoute() bool { return explicitRoutes[e.EventType] }

// IsPhaseRoute reports whether e uses Strategy B (diary phase lookup).
func (e Envelope) IsPhaseRoute() bool { return phaseRoutes[e.EventType] }

// WithCorrelationID sets the correlation ID; for use with New* option args.
func WithCorrelationID(id string) func(*Envelope) {
	return func(e *Envelope) { e.CorrelationID = id }
}

// WithSender overrides sender identity on a freshly built envelope.
func WithSender(senderID string, role SenderRole) func(*Envelope) {
	return func(e *Envelope) {
		e.SenderID = senderID
		e.SenderRole = role
	}
}

// WithChannel overrides the originating channel on a USER_MESSAGE envelope.
func WithChannel(channel string) func(*Envelope) {
	return func(e *Envelope) {
		e.Source = channel
		e.Payload = e.Payload.Set("channel", channel)
	}
}
