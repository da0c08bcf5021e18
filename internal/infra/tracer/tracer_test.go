package tracer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"metasearch/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetupExporters(t *testing.T) {
	for _, exporter := range []string{"noop", "", "stdout"} {
		shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exporter})
		if err != nil {
			t.Fatalf("Setup(%q): %v", exporter, err)
		}
		_ = shutdown(context.Background())
	}
}

func TestSetupFileExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.jsonl")
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "file", Output: path})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "search", StringAttr("search.query", "gopher"))
	SetOK(span)
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	otel.SetTracerProvider(noop.NewTracerProvider())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if !strings.Contains(string(data), `"Name":"search"`) {
		t.Errorf("span file does not hold the search span: %s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestSetupFileExporterBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "spans.jsonl")
	if _, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "file", Output: path}); err == nil {
		t.Error("expected error for unwritable output")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{-2, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	if _, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "jaeger"}); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestStartSpanRecordsAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, span := StartSpan(context.Background(), "engine.search",
		StringAttr("engine.name", "wiki"),
		IntAttr("engine.results", 3),
		BoolAttr("engine.timed_out", false),
		DurationAttr("engine.budget_ms", 1500*time.Millisecond),
	)
	RecordError(span, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "engine.search" {
		t.Errorf("name = %q", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", s.Status().Code)
	}
	attrs := map[string]any{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["engine.name"] != "wiki" {
		t.Errorf("engine.name = %v", attrs["engine.name"])
	}
	if attrs["engine.budget_ms"] != int64(1500) {
		t.Errorf("engine.budget_ms = %v", attrs["engine.budget_ms"])
	}
}

func TestSetOK(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())
	_, span := StartSpan(context.Background(), "noop")
	SetOK(span)
	span.End()
}
