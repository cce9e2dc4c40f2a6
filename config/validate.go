package config

import (
	"fmt"
	"strings"

	"runclub/storage"
)

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StorageBackend) {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.StorageBackend)
	}
	switch c.Indexer.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	if c.Indexer.Driver == "postgres" && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: postgres requires a DSN")
	}
	if c.Auth.SignatureSkewSeconds < 0 {
		return fmt.Errorf("auth: signature skew must not be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.Token.Decimals > 36 {
		return fmt.Errorf("token: decimals %d out of range", c.Token.Decimals)
	}
	return nil
}
