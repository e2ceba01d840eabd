// Package prometheus renders limiter metrics in Prometheus text exposition
// format. It hand-writes the format instead of depending on the Prometheus
// client so embedders pay no extra dependency cost.
package prometheus
