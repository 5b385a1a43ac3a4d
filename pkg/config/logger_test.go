package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaultsToConsoleInfo(t *testing.T) {
	logger, err := Logger{}.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestValidateRejectsInvalidEncoding(t *testing.T) {
	require.Error(t, Logger{LogEncoding: "xml"}.Validate())
}

func TestValidateRejectsInvalidLevel(t *testing.T) {
	require.Error(t, Logger{LogLevel: "noisy"}.Validate())
}

func TestNewLoggerCreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "node.log")
	logger, err := Logger{LogPath: path}.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)
}
