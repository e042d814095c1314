// Package telemetry wraps OpenTelemetry SDK initialization, giving the
// Gateway centralized TracerProvider and MeterProvider configuration.
// When telemetry is disabled, noop providers are used and no external
// connection is made.
package telemetry
