package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProfiler(t *testing.T) {
	cfg := disabledConfig()

	p, err := NewProfiler(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())

	cfg.ProfilingEnabled = true
	_, err = NewProfiler(cfg, zap.NewNop())
	assert.Error(t, err, "an address is required")
}

func TestSanitizeLabels(t *testing.T) {
	long := make([]byte, MaxLabelValueLength+10)
	for i := range long {
		long[i] = 'x'
	}

	pairs := sanitizeLabels(map[string]string{
		"Route":      "/api/v1/orders",
		"saga-step":  "deduct stock",
		"order_id":   "0190b1a2-0000-7000-8000-000000000000",
		"empty":      "",
		"$$":         "dropped",
		"operation":  string(long),
		"request_id": "abc",
	})

	assert.Equal(t, []string{
		"operation", string(long[:MaxLabelValueLength]),
		"route", "/api/v1/orders",
		"saga_step", "deduct stock",
	}, pairs)
}

func TestWithProfilingLabels_RunsFn(t *testing.T) {
	for _, labels := range []map[string]string{nil, {"user_id": "x"}, OperationLabels("reconcile")} {
		called := false
		WithProfilingLabels(context.Background(), labels, func(context.Context) { called = true })
		assert.True(t, called)
	}
}
