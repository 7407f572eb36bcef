// Package otel binds tokenauth engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// for the verification latency histogram, a bucket gauge carrying an "le"
// attribute plus a count gauge. A single callback reads
// [tokenauth.Engine.MetricsSnapshot] on each collection cycle.
//
// The caller owns the MeterProvider. The exporter never mutates engine state.
package otel
