// Package telemetry wires OpenTelemetry tracing and metrics for verifyd.
//
// Session operations emit spans and counters through the global providers;
// this package installs OTLP-backed providers when telemetry is enabled and
// leaves the no-op globals in place otherwise. Exporter failures degrade the
// instance instead of failing startup.
//
//	telemetry:
//	  enabled: true
//	  endpoint: localhost:4317
//	  protocol: grpc
//	  sampling:
//	    rate: 0.25
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
