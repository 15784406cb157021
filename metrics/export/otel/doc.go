// Package otel publishes goSession client metrics as OpenTelemetry observable
// instruments. Counters map to Int64ObservableCounter; the latency histogram is
// exposed as one cumulative gauge per bucket plus a count gauge, because the
// metric API has no observable histogram.
package otel
