package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"

	"github.com/nisum/oppenheimer/internal/infra/config"
)

func TestNewTracerProviderWithoutExport(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	tp, err := NewTracerProvider(context.Background(), config.TelemetrySettings{ServiceName: "oppenheimer"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTracerProvider returned error: %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().TraceID().IsValid() {
		t.Fatal("expected a valid trace id while export is disabled")
	}
	span.End()

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}
