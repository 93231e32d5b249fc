package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{level: "debug", want: true},
		{level: "info", want: false},
		{level: "", want: false},
		{level: "warn", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Config{Level: tt.level, Encoding: "json"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.Core().Enabled(zap.DebugLevel))
		})
	}
}

func TestNewWritesToConfiguredSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.log")

	logger, err := New(Config{Level: "info", Encoding: "json", OutputPaths: []string{" ", path}})
	require.NoError(t, err)

	logger.Info("block processed", zap.Uint64("block", 42))
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"block processed"`)
	assert.Contains(t, string(raw), `"block":42`)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_ENCODING", "console")
	t.Setenv("LOG_OUTPUT", "stdout,/tmp/balancex.log")

	cfg := ConfigFromEnv()
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, []string{"stdout", "/tmp/balancex.log"}, cfg.OutputPaths)
}
