/*
Package main provides the MedForce Gateway executable entrypoint.

# Overview

cmd/gateway is the Gateway Core's executable: an HTTP API server, authstore
migrations, and health/version subcommands. It loads a YAML config with
environment overrides, logs structurally via zap, and exposes Prometheus
metrics on a dedicated port.

# Core types

  - Server        — owns the HTTP and metrics listeners, the Gateway control
    loop, and the heartbeat scheduler; manages graceful shutdown
  - Middleware     — func(http.Handler) http.Handler, chained via Chain
  - responseWriter — wraps http.ResponseWriter to capture status code

# Capabilities

  - Subcommands: serve, migrate, version, health
  - Middleware chain: Recovery, RequestID, SecurityHeaders, RequestLogger,
    MetricsMiddleware, OTelTracing, CORS, RateLimiter (per-IP), APIKeyAuth
    (X-API-Key / Bearer token against internal/authstore)
  - Metrics server: dedicated port exposing /metrics (Prometheus)
  - Graceful shutdown: signal -> stop heartbeat -> close HTTP -> close
    metrics -> close Gateway -> close cache/Mongo -> close telemetry -> wait
  - Build injection: Version, BuildTime, GitCommit set via -ldflags
*/
package main
