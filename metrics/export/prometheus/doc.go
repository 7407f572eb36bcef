// Package prometheus exposes tokenauth engine metrics through
// client_golang.
//
// [Collector] implements prometheus.Collector and reads
// [tokenauth.Engine.MetricsSnapshot] on every scrape. Counters are named
// tokenauth_*_total; the verification latency histogram is
// tokenauth_validate_latency_seconds. Register the collector on any
// registry, or mount [Collector.Handler] which uses a private one.
package prometheus
