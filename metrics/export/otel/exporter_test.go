package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goSession "github.com/MrEthical07/goSession"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[goSession.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSession.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSession.MetricsSnapshot{
		Counters:   make(map[goSession.MetricID]uint64, len(f.counters)),
		Histograms: map[goSession.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[goSession.MetricRequestLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) ObserverDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterCollects(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{
		counters: map[goSession.MetricID]uint64{goSession.MetricLoginSuccess: 3, goSession.MetricRefreshFailure: 2},
		latency:  []uint64{1, 1, 0, 0, 0, 0, 0, 2},
		dropped:  5,
	}

	exp, err := NewExporter(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	got := collect(t, reader)
	checks := map[string]int64{
		"gosession_login_success_total":                     3,
		"gosession_refresh_failure_total":                   2,
		"gosession_logout_total":                            0,
		"gosession_observer_dropped_total":                  5,
		"gosession_request_latency_seconds_bucket_le_0_05":  2,
		"gosession_request_latency_seconds_bucket_le_inf":   4,
		"gosession_request_latency_seconds_count":           4,
		"gosession_request_latency_seconds_bucket_le_0_025": 1,
	}
	for name, want := range checks {
		if got[name] != want {
			t.Fatalf("%s = %d, want %d", name, got[name], want)
		}
	}
}

func TestExporterRejectsNil(t *testing.T) {
	_, provider := newMeter()
	if _, err := NewExporter(provider.Meter("gosession-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterCloseStopsObservation(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{counters: map[goSession.MetricID]uint64{goSession.MetricLogout: 1}}
	exp, err := NewExporter(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := collect(t, reader); len(got) != 0 {
		t.Fatalf("expected no observations after Close, got %v", got)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{counters: map[goSession.MetricID]uint64{goSession.MetricLoginSuccess: 1}}
	exp, err := NewExporter(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[goSession.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
