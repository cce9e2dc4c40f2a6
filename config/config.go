package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"runclub/crypto"
	"runclub/storage"
)

type Config struct {
	ListenAddress        string          `toml:"ListenAddress"`
	DataDir              string          `toml:"DataDir"`
	StorageBackend       string          `toml:"StorageBackend"`
	GenesisFile          string          `toml:"GenesisFile"`
	OperatorKeystorePath string          `toml:"OperatorKeystorePath"`
	PausedModules        []string        `toml:"PausedModules"`
	Token                TokenConfig     `toml:"token"`
	Auth                 AuthConfig      `toml:"auth"`
	RateLimit            RateLimitConfig `toml:"rate_limit"`
	Indexer              IndexerConfig   `toml:"indexer"`
	Logging              LoggingConfig   `toml:"logging"`
	Telemetry            TelemetryConfig `toml:"telemetry"`
	Watcher              WatcherConfig   `toml:"watcher"`
}

// Load loads the configuration from the given path. A default file and
// operator keystore are written when the path does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %q", path, undecoded[0].String())
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration suitable for a local single-node setup.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./runclub-data"
	}
	if strings.TrimSpace(c.StorageBackend) == "" {
		c.StorageBackend = storage.BackendLevelDB
	}
	if c.PausedModules == nil {
		c.PausedModules = []string{}
	}
	if strings.TrimSpace(c.Token.Symbol) == "" {
		c.Token.Symbol = "USDC"
	}
	if strings.TrimSpace(c.Token.Name) == "" {
		c.Token.Name = "USD Coin"
	}
	if c.Token.Decimals == 0 {
		c.Token.Decimals = 6
	}
	if strings.TrimSpace(c.Auth.OracleIssuer) == "" {
		c.Auth.OracleIssuer = "runclub-oracle"
	}
	if strings.TrimSpace(c.Auth.OracleAudience) == "" {
		c.Auth.OracleAudience = "runclubd"
	}
	if c.Auth.SignatureSkewSeconds == 0 {
		c.Auth.SignatureSkewSeconds = 300
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 600
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 60
	}
	if strings.TrimSpace(c.Indexer.Driver) == "" {
		c.Indexer.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Indexer.DSN) == "" && c.Indexer.Driver == "sqlite" {
		c.Indexer.DSN = filepath.Join(c.DataDir, "events.db")
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if strings.TrimSpace(c.Watcher.Schedule) == "" {
		c.Watcher.Schedule = "@every 1m"
	}
}

// IsPaused reports whether module is listed in PausedModules.
func (c *Config) IsPaused(module string) bool {
	if c == nil {
		return false
	}
	for _, paused := range c.PausedModules {
		if strings.EqualFold(strings.TrimSpace(paused), module) {
			return true
		}
	}
	return false
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, "", false); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, "", false); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.OperatorKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
