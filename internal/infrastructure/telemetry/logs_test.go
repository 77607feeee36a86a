package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerProvider_DisabledCoreIsNop(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), disabledConfig(), zap.NewNop())
	require.NoError(t, err)

	core := lp.Core(zapcore.DebugLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))

	logger := zap.New(core).With(zap.String("component", "relay"))
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept too")

	require.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "relay", entry.ContextMap()["component"])
	}
}
