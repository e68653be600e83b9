package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestBuildLevels(t *testing.T) {
	logger, err := Build(false, "warn")
	require.NoError(t, err)
	defer logger.Sync()

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestBuildVerboseForcesDebug(t *testing.T) {
	logger, err := Build(true, "error")
	require.NoError(t, err)
	defer logger.Sync()

	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "verbose wins over the configured level")
}

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, err := Build(false, "loud")
	require.Error(t, err)
}

func TestBuildDefaultLevel(t *testing.T) {
	logger, err := Build(false, "")
	require.NoError(t, err)
	defer logger.Sync()

	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
