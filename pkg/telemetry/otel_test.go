package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/seisqc/seisqc/pkg/config"
)

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.TelemetryConfig{
		Enabled:    true,
		Endpoint:   "otel:4317",
		Insecure:   false,
		SampleRate: 0.25,
	}, "1.2.0")

	if cfg.Endpoint != "otel:4317" || cfg.InsecureTLS || cfg.SamplingRatio != 0.25 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.ServiceName != ServiceName || cfg.ServiceVersion != "1.2.0" {
		t.Errorf("unexpected service %s/%s", cfg.ServiceName, cfg.ServiceVersion)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		if got := Sampler(tt.ratio).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("Sampler(%v) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestExporterInit(t *testing.T) {
	cfg := DefaultOTLPConfig()
	cfg.Endpoint = "127.0.0.1:1"
	e := NewOTLPExporter(cfg)

	if _, err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !e.IsInitialized() {
		t.Fatal("exporter not initialized")
	}
	if e.Tracer("test") == nil {
		t.Fatal("nil tracer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// No collector is listening; only the state change matters here.
	_ = e.Shutdown(ctx)
	if e.IsInitialized() {
		t.Error("exporter still initialized after shutdown")
	}
}
