package metrics

import (
	"testing"
	"time"

	"aggticker/logger"
)

func resetMetricHandlers() {
	metricHandlersMu.Lock()
	metricHandlers = make(map[MetricHandlerID]MetricHandler)
	nextMetricHandlerID = 0
	metricHandlersMu.Unlock()
}

func TestRegisterMetricHandlerReturnsUniqueIDs(t *testing.T) {
	resetMetricHandlers()

	id := RegisterMetricHandler(func(Metric) {})
	if id == 0 {
		t.Fatalf("expected non-zero handler id")
	}

	second := RegisterMetricHandler(func(Metric) {})
	if second == 0 || second == id {
		t.Fatalf("expected unique handler id")
	}
}

func TestRegisterMetricHandlerNil(t *testing.T) {
	resetMetricHandlers()

	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("expected zero id for nil handler, got %d", id)
	}
}

func TestEmitMetricDispatchesToHandlers(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	fields := logger.Fields{"venue": "deribit", "unit": "count"}
	EmitMetric(logger.Logger(), "provider", "fetches", 3, "gauge", fields)

	select {
	case event := <-events:
		if event.Component != "provider" || event.Name != "fetches" || event.Type != "gauge" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if _, ok := fields["metric"]; ok {
			t.Fatalf("original fields mutated: %v", fields)
		}
		if _, ok := event.Fields["metric"]; ok {
			t.Fatalf("event fields should not contain metric key: %v", event.Fields)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked")
	}
}

func TestEmitMetricDefaultType(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	EmitMetric(nil, "service", "aggregations", 1, "", nil)

	select {
	case event := <-events:
		if event.Type != "counter" {
			t.Fatalf("expected default metric type to be counter, got %s", event.Type)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked for default type")
	}
}

func TestEmitMetricWithoutName(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	EmitMetric(nil, "component", "", 1, "counter", nil)

	select {
	case <-events:
		t.Fatal("handler should not receive metrics without a name")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnregisteredHandlerStopsReceiving(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	EmitMetric(nil, "service", "aggregations", 1, "", nil)
	UnregisterMetricHandler(id)
	EmitMetric(nil, "service", "aggregations", 1, "", nil)

	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}
