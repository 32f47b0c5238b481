// Package prometheus provides a client_golang collector for goSession client metrics.
//
// [NewExporter] accepts a [goSession.Client] (or any [MetricsSource]) and implements
// prometheus.Collector. Counter names are prefixed gosession_*_total; the single
// histogram is gosession_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register the collector
//     or mount [Exporter.Handler], which uses a private registry.
//   - Mutate client state.
package prometheus
