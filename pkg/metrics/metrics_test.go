package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })

	// Registering twice on the same registry is a programming error.
	assert.Panics(t, func() { Register(reg) })
}

func TestSegmentsCounter(t *testing.T) {
	before := testutil.ToFloat64(SegmentsTotal.WithLabelValues("failed"))
	SegmentsTotal.WithLabelValues("failed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SegmentsTotal.WithLabelValues("failed")))
}

func TestGatherExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	RemuxTotal.WithLabelValues("passthrough").Inc()

	expected := `
# HELP hlsgrab_active_jobs Number of download jobs not yet in a terminal state.
# TYPE hlsgrab_active_jobs gauge
hlsgrab_active_jobs 0
`
	ActiveJobs.Set(0)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "hlsgrab_active_jobs"))

	n, err := testutil.GatherAndCount(reg, "hlsgrab_remux_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
