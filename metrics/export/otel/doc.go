// Package otel binds goLease engine metrics to OpenTelemetry instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per cumulative latency bucket, all fed by a single
// callback that reads [goLease.Engine.MetricsSnapshot] once per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
