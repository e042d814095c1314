/*
Package handlers implements the MedForce Gateway's HTTP request handlers.

# Overview

handlers implements the request logic behind every Gateway HTTP
endpoint: event submission, diary/event-log/DLQ introspection, API key
administration, and health checks, all sharing one response/error
envelope. Every handler follows the standard net/http interface.

# Core types

  - EmitHandler        — accepts inbound events onto the Gateway's queue
  - IntrospectionHandler — diary/event-log/DLQ/replay endpoints
  - APIKeyHandler      — API key issue/list/revoke
  - HealthHandler      — liveness and queue/DLQ depth (/health)
  - Response           — unified JSON envelope (success + data + error + timestamp)
  - ErrorInfo          — structured error info with code/message/retryable
  - ResponseWriter     — wraps http.ResponseWriter to capture the status code

# Capabilities

  - Uniform response helpers: WriteSuccess / WriteError / WriteJSON
  - Request validation: DecodeJSONBody (1 MB limit, strict mode), ValidateContentType
  - gwerrors.Code to HTTP status mapping (4xx/5xx)
*/
package handlers
