// Package api provides the HTTP envelope and request/response types for
// the MedForce Gateway's ingress and introspection surface.
package api

import "time"

// Response is the canonical API envelope every handler writes.
// @Description Standard API response envelope
type Response struct {
	// Whether the request succeeded
	Success bool `json:"success"`
	// Response payload, present only on success
	Data any `json:"data,omitempty"`
	// Error details, present only on failure
	Error *ErrorInfo `json:"error,omitempty"`
	// Server-side response timestamp
	Timestamp time.Time `json:"timestamp"`
	// Request ID for correlation, if available
	RequestID string `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed request.
// @Description Error detail structure
type ErrorInfo struct {
	// Machine-readable error code, e.g. RATE_LIMITED
	Code string `json:"code"`
	// Human-readable error message
	Message string `json:"message"`
	// HTTP status code
	HTTPStatus int `json:"http_status,omitempty"`
	// Whether the caller may retry the request
	Retryable bool `json:"retryable,omitempty"`
}

// EmitRequest is the body of POST /api/gateway/emit: one inbound event
// for the Gateway's control loop.
// @Description Inbound event submission
type EmitRequest struct {
	// Patient this event concerns
	PatientID string `json:"patient_id" binding:"required"`
	// Event type, e.g. USER_MESSAGE, DOCUMENT_UPLOADED, WEBHOOK
	EventType string `json:"event_type" binding:"required"`
	// Opaque, agent-interpreted payload
	Payload map[string]any `json:"payload,omitempty"`
	// Originating sender ID (resolved upstream by identity.Resolver)
	SenderID string `json:"sender_id,omitempty"`
	// Sender role: patient, helper, gp, system, agent
	SenderRole string `json:"sender_role,omitempty"`
	// Correlation ID for tracing a conversation across events
	CorrelationID string `json:"correlation_id,omitempty"`
}

// EmitResponse acknowledges a submitted event. The Gateway processes
// events asynchronously on a per-patient queue, so this only confirms
// acceptance, not completion.
// @Description Event submission acknowledgement
type EmitResponse struct {
	// ID assigned to the accepted event
	EventID string `json:"event_id"`
	// Always "accepted" — processing happens on the patient's queue
	Status string `json:"status" example:"accepted"`
}

// HealthResponse reports coarse Gateway liveness.
// @Description Health check response
type HealthResponse struct {
	// "ok" when the Gateway is serving traffic
	Status string `json:"status" example:"ok"`
	// Number of patients with an active queue worker
	ActivePatients int `json:"active_patients"`
	// Current dead-letter queue depth
	DLQSize int `json:"dlq_size"`
}

// EventLogEntryResponse mirrors gateway.EventLogEntry for the
// introspection endpoint.
// @Description One processed-event audit record
type EventLogEntryResponse struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	PatientID   string    `json:"patient_id"`
	Target      string    `json:"target,omitempty"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	PhaseBefore string    `json:"phase_before,omitempty"`
	PhaseAfter  string    `json:"phase_after,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventLogResponse is the body of GET /api/gateway/events/{patient_id}.
// @Description Recent event log entries
type EventLogResponse struct {
	Events []EventLogEntryResponse `json:"events"`
}

// DLQEntryResponse mirrors gateway.DLQEntry for the introspection
// endpoint.
// @Description One dead-lettered event
type DLQEntryResponse struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	PatientID string    `json:"patient_id"`
	Target    string    `json:"target"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// DLQResponse is the body of GET /api/gateway/dlq.
// @Description Dead-letter queue contents
type DLQResponse struct {
	Entries []DLQEntryResponse `json:"entries"`
}

// ReplayResponse is the body of POST /api/gateway/dlq/{event_id}/replay.
// @Description Dead-letter replay result
type ReplayResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status" example:"resubmitted"`
}

// APIKeyResponse is the public view of an issued API key — the plaintext
// token is included only in the create response, never on list.
// @Description API key record
type APIKeyResponse struct {
	ID         uint       `json:"id"`
	Label      string     `json:"label"`
	Role       string     `json:"role"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	// Token is only populated immediately after Issue; never persisted
	// in plaintext and never returned again.
	Token string `json:"token,omitempty"`
}

// APIKeyListResponse is the body of GET /api/gateway/keys.
// @Description API key list
type APIKeyListResponse struct {
	Keys []APIKeyResponse `json:"keys"`
}

// IssueAPIKeyRequest is the body of POST /api/gateway/keys.
// @Description Request to issue a new API key
type IssueAPIKeyRequest struct {
	// Human-readable label, e.g. "helper-app integration"
	Label string `json:"label" binding:"required"`
	// Sender role the key authenticates as: patient, helper, gp, system, agent
	Role string `json:"role" binding:"required"`
}
