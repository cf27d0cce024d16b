// Package prometheus exposes goLease engine metrics through
// prometheus/client_golang.
//
// [Collector] implements prometheus.Collector over an engine snapshot: every
// counter becomes a golease_*_total const metric and the Validate latency
// buckets become golease_validate_latency_seconds. [NewExporter] wraps a
// collector in its own registry and serves it with promhttp.
//
// # What this package must NOT do
//
//   - Register into prometheus.DefaultRegisterer; callers choose the registry.
//   - Mutate engine state.
package prometheus
