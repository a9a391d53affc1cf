package telemetry_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/aiswarm/swarmd/internal/telemetry"
)

func TestInit_DisabledReturnsNoopProvider(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{Enabled: false})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if provider.Tracer == nil || provider.Meter == nil {
		t.Fatal("expected non-nil no-op tracer and meter when telemetry is disabled")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInit_StdoutExporterProducesWorkingProvider(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:     true,
		Exporter:    "stdout",
		ServiceName: "aiswarmd-test",
		SampleRate:  1.0,
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer provider.Shutdown(context.Background())

	_, span := telemetry.StartSpan(context.Background(), provider.Tracer, "test.span")
	span.End()
}

func TestNewMetrics_RegistersAllInstruments(t *testing.T) {
	m, err := telemetry.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m.ToolCallDuration == nil || m.ToolCallErrors == nil || m.EventsPublished == nil ||
		m.TasksClaimed == nil || m.TasksCompleted == nil || m.AgentsRegistered == nil {
		t.Fatal("expected all metric instruments to be non-nil")
	}

	ctx := context.Background()
	m.ToolCallDuration.Record(ctx, 0.25)
	m.ToolCallErrors.Add(ctx, 1)
	m.EventsPublished.Add(ctx, 1)
	m.TasksClaimed.Add(ctx, 1)
	m.TasksCompleted.Add(ctx, 1)
	m.AgentsRegistered.Add(ctx, 1)
}
