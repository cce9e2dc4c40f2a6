package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runclubd.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, "USDC", cfg.Token.Symbol)
	require.Equal(t, "leveldb", cfg.StorageBackend)
	require.FileExists(t, path)
	require.FileExists(t, filepath.Join(dir, "operator.keystore"))

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.OperatorKeystorePath, again.OperatorKeystorePath)
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runclubd.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
StorageBackend = "bolt"
PausedModules = ["runclub"]

[token]
Symbol = "eurc"
Name = "Euro Coin"

[auth]
OracleHMACSecret = "s3cret"
SignatureSkewSeconds = 60

[indexer]
Driver = "postgres"
DSN = "host=localhost user=runclub"

[watcher]
Enabled = true
Schedule = "*/5 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "bolt", cfg.StorageBackend)
	require.Equal(t, "eurc", cfg.Token.Symbol)
	require.Equal(t, uint8(6), cfg.Token.Decimals)
	require.Equal(t, int64(60), cfg.Auth.SignatureSkewSeconds)
	require.Equal(t, "postgres", cfg.Indexer.Driver)
	require.True(t, cfg.Watcher.Enabled)
	require.True(t, cfg.IsPaused("RunClub"))
	require.False(t, cfg.IsPaused("token"))
	require.Equal(t, filepath.Join(dir, "operator.keystore"), cfg.OperatorKeystorePath)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runclubd.toml")
	require.NoError(t, os.WriteFile(path, []byte("Bootnodes = [\"x\"]\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, filepath.Join("./runclub-data", "events.db"), cfg.Indexer.DSN)

	cfg.StorageBackend = "cassandra"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Indexer = IndexerConfig{Driver: "postgres"}
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Indexer.Driver = "mysql"
	require.Error(t, cfg.Validate())
}
