package telemetry

import (
	"context"
	"testing"
)

type testConfig struct{ exporter string }

func (c testConfig) GetServiceName() string    { return "lead-protection" }
func (c testConfig) GetServiceVersion() string { return "test" }
func (c testConfig) GetEnv() string            { return "development" }
func (c testConfig) GetOTELExporter() string   { return c.exporter }
func (c testConfig) IsTelemetryEnabled() bool  { return c.exporter != ExporterNone }

func TestSetupNoneIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), testConfig{exporter: ExporterNone})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	if _, err := Setup(context.Background(), testConfig{exporter: "zipkin"}); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}
