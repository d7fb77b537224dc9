package logging

import (
	"testing"

	"github.com/aescanero/patchwork/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	settings, err := config.Parse([]byte(`
logging:
  level: error
  outputPaths: [stdout]
manager: {name: http}
executor: {name: pool}
subscriber: {name: memory}
`))
	require.NoError(t, err)

	logger, err := New(settings)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	Component(logger, "module", "db").Info("started")
	Component(logger, "executor", "executor").Info("started")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "module", entries[0].LoggerName)
	assert.Equal(t, "db", entries[0].ContextMap()["component"])
	assert.Equal(t, "executor", entries[1].LoggerName)
	assert.Empty(t, entries[1].ContextMap())
}
