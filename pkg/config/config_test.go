package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileAppliesDefaultsAndOverrides(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "p2pnode.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
P2P:
  Threads: 8
  NetworkMagic: 3652501241
Logger:
  LogEncoding: json
`), os.ModePerm))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.P2P.Threads)
	require.Equal(t, uint32(3652501241), cfg.P2P.NetworkMagic)
	require.Equal(t, "json", cfg.Logger.LogEncoding)
	// Unset fields still carry the package default.
	require.Equal(t, 4, cfg.P2P.ConnectBatchSize)
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "p2pnode.yml")
	require.NoError(t, os.WriteFile(path, []byte(`UnknownField: 123`), os.ModePerm))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsInvalidP2P(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "p2pnode.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
P2P:
  Threads: 0
`), os.ModePerm))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestUpdateRelativePaths(t *testing.T) {
	cfg := Config{P2P: P2P{HostFilePath: "hosts.dat"}, Logger: Logger{LogPath: "node.log"}}
	updateRelativePaths("/var/lib/p2pnode", &cfg)
	require.Equal(t, filepath.Join("/var/lib/p2pnode", "hosts.dat"), cfg.P2P.HostFilePath)
	require.Equal(t, filepath.Join("/var/lib/p2pnode", "node.log"), cfg.Logger.LogPath)
}
