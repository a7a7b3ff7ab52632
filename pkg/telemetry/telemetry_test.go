package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), "hlsgrab-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitWithEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")
	shutdown, err := Init(context.Background(), "hlsgrab-test")
	require.NoError(t, err)
	// Nothing listens there, shutdown must still return.
	_ = shutdown(context.Background())
}

func TestParseSampleRate(t *testing.T) {
	tests := map[string]float64{
		"":     1.0,
		"0.25": 0.25,
		"0":    0,
		"1.5":  1.0,
		"-1":   1.0,
		"abc":  1.0,
	}
	for raw, want := range tests {
		t.Setenv("OTEL_TRACE_SAMPLE_RATE", raw)
		assert.Equal(t, want, parseSampleRate(), raw)
	}
}
