// Package prometheus exposes goSession client metrics to Prometheus through a
// client_golang Collector.
package prometheus
