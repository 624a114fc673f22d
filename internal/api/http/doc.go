// Package http serves the watchdog's local status endpoint with gin:
// /healthz for liveness probes, /status for the supervisor snapshot and
// /metrics for Prometheus.
package http
