// Package prometheus exposes engine metrics in Prometheus text format.
//
// [NewPrometheusExporter] accepts an engine and exposes an [http.Handler]
// that renders all counters and histograms in Prometheus text exposition
// format. Counter names are prefixed lockstep_*_total; the single histogram
// is lockstep_rotate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
