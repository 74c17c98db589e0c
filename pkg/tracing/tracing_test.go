package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabledIsNoop(t *testing.T) {
	p, err := Init(context.Background(), config.ServiceConfig{Name: "items"}, config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), config.ServiceConfig{Name: "items"}, config.TracingConfig{Enabled: true, Protocol: "zipkin"})
	assert.Error(t, err)
}

func TestCollectorAddr(t *testing.T) {
	tests := []struct {
		endpoint string
		addr     string
		insecure bool
		wantErr  bool
	}{
		{endpoint: "localhost:4317", addr: "localhost:4317", insecure: true},
		{endpoint: "http://otel-collector:4317", addr: "otel-collector:4317", insecure: true},
		{endpoint: "https://collector.example.com:4317", addr: "collector.example.com:4317"},
		{endpoint: "ftp://collector:21", wantErr: true},
		{endpoint: "http://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			addr, insecure, err := collectorAddr(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, addr)
			assert.Equal(t, tt.insecure, insecure)
		})
	}
}

func TestEndRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Start(context.Background(), "store.select")
	End(span, errors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "store.select", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1)
}
