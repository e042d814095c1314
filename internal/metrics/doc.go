/*
Package metrics provides Prometheus-based collection for the ambient
HTTP, cache, and database concerns shared across the Gateway's
supporting infrastructure.

# Overview

Collector registers and records Prometheus metrics through promauto,
avoiding manual Registry bookkeeping. Every metric is namespace-scoped
and label-grouped for Grafana-style visualization and alerting.

# Core types

  - Collector: holds Counter/Histogram/Gauge vectors grouped by concern.

# Capabilities

  - HTTP metrics: request count, request duration, request/response
    body size, grouped by method/path/status (status bucketed into
    2xx/3xx/4xx/5xx).
  - Cache metrics: hit and miss counts, grouped by cache_type.
  - Database metrics: open/idle connection gauges, query duration
    histogram, grouped by database/operation.

Event-pipeline metrics (events processed, DLQ depth, per-agent stage
duration) are not part of this package; see gateway.Metrics.
*/
package metrics
