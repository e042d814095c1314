// Package api documents the MedForce Gateway's HTTP surface.
//
// # API Overview
//
// The Gateway exposes a small REST surface:
//   - POST /api/gateway/emit — submit an inbound event
//   - GET  /api/gateway/diary/{patient_id} — fetch a patient's diary
//   - GET  /api/gateway/events/{patient_id} — recent event log entries
//   - GET  /api/gateway/dlq — dead-letter queue contents
//   - POST /api/gateway/dlq/{event_id}/replay — resubmit a dead-lettered event
//   - GET  /health — liveness and queue/DLQ depth
//   - GET  /healthz, /ready, /readyz, /version — probes and build info
//   - API key administration under /api/gateway/keys
//
// Prometheus metrics are exposed at /metrics on the separate metrics port.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Authentication
//
// Every endpoint except /health, /healthz, /ready, /readyz, /version and
// /metrics requires a bearer token (or the same token in X-API-Key):
//
//	Authorization: Bearer <token>
//
// Tokens are issued via internal/authstore and resolve to a sender role
// that gates which event types and targets a caller may use.
package api
