package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNew_TeesIntoWriters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", "json", "altimeter", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("calibrated", zap.Float64("sea_level_pa", 101325))

	out := buf.String()
	assert.Contains(t, out, "calibrated")
	assert.Contains(t, out, "altimeter")
	assert.Contains(t, out, "sea_level_pa")
	assert.NotContains(t, out, "hidden")
}

func TestNew_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "console", "", &buf)
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
