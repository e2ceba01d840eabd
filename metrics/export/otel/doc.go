// Package otel exposes limiter metrics through the OpenTelemetry metric API
// using observable instruments backed by snapshot reads.
package otel
