// File: internal/observability/logger_test.go
package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/vistral/deskpilot/internal/config"
)

type memorySink struct {
	strings.Builder
}

func (m *memorySink) Sync() error { return nil }

func testLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "deskpilot-test"}
}

func TestInitialize_WritesThroughConfiguredLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memorySink{}
	Initialize(testLoggerConfig(), zapcore.Lock(sink))

	logger := GetLogger()
	logger.Debug("debug line")
	logger.Info("info line")
	require.NoError(t, logger.Sync())

	out := sink.String()
	assert.Contains(t, out, "debug line")
	assert.Contains(t, out, "info line")
	assert.Contains(t, out, "deskpilot-test")
}

func TestInitialize_OnlyFirstCallWins(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memorySink{}
	second := &memorySink{}
	Initialize(testLoggerConfig(), zapcore.Lock(first))
	Initialize(testLoggerConfig(), zapcore.Lock(second))

	GetLogger().Info("routed")
	assert.Contains(t, first.String(), "routed")
	assert.Empty(t, second.String())
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Level = "shout"
	sink := &memorySink{}
	Initialize(cfg, zapcore.Lock(sink))

	GetLogger().Debug("hidden")
	GetLogger().Info("visible")
	assert.NotContains(t, sink.String(), "hidden")
	assert.Contains(t, sink.String(), "visible")
}

func TestNewLogger_RejectsInvalidLevel(t *testing.T) {
	cfg := testLoggerConfig()
	cfg.Level = "shout"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}
