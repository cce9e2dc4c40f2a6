package config

// TokenConfig selects the stable asset clubs are funded in.
type TokenConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// AuthConfig configures request verification at the gateway.
type AuthConfig struct {
	// OracleHMACSecret signs the JWTs presented by the KM oracle.
	OracleHMACSecret string `toml:"OracleHMACSecret"`
	OracleIssuer     string `toml:"OracleIssuer"`
	OracleAudience   string `toml:"OracleAudience"`
	// SignatureSkewSeconds bounds the age of a signed request timestamp.
	SignatureSkewSeconds int64 `toml:"SignatureSkewSeconds"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// IndexerConfig selects the SQL database mirroring committed events.
type IndexerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

type LoggingConfig struct {
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Headers  string `toml:"Headers"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// WatcherConfig drives the period-end watcher.
type WatcherConfig struct {
	Enabled  bool   `toml:"Enabled"`
	Schedule string `toml:"Schedule"`
}
