// Package ctxkeys defines the small set of context-scoped values that
// flow through a request from HTTP ingress down to ProcessEvent and the
// background diary save, without threading them as explicit parameters
// through every call.
package ctxkeys

import "context"

type contextKey string

const (
	traceIDKey     contextKey = "trace_id"
	eventIDKey     contextKey = "event_id"
	patientIDKey   contextKey = "patient_id"
	apiKeyIDKey    contextKey = "api_key_id"
)

// WithTraceID attaches a request trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID reads the request trace id, if any.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithEventID attaches the id of the event currently being processed.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// EventID reads the current event id, if any.
func EventID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(eventIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPatientID attaches the patient id a request or pipeline run concerns.
func WithPatientID(ctx context.Context, patientID string) context.Context {
	return context.WithValue(ctx, patientIDKey, patientID)
}

// PatientID reads the patient id, if any.
func PatientID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(patientIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAPIKeyID attaches the id of the API key that authenticated the request.
func WithAPIKeyID(ctx context.Context, keyID string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, keyID)
}

// APIKeyID reads the authenticating API key id, if any.
func APIKeyID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
